package insight

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const htmlInstruction = "Return the answer as clean HTML wrapped in a single <div> tag so it can be rendered directly in a web page. Include <p>, <ul>, <strong>, <h3> etc. to structure the response."

const preamble = "You are a virtual health assistant.\n\nHere is the user's health data:\n"

var defaultPrompts = map[string]string{
	"How is my blood pressure trend?": preamble +
		"- Systolic blood pressure readings over the past 7 days: [{bp-sys-readings}]\n" +
		"- Diastolic blood pressure readings over the past 7 days: [{bp-dist-readings}]\n" +
		"- User is {age} years old, {gender}, with {prehypertension-flag} history of prehypertension\n\n" +
		"User Query: How is my blood pressure trend?\n\n" +
		"Please analyze the trend and provide personalized feedback in a clinical but easy-to-understand manner.\n\n" +
		htmlInstruction,
	"Am I getting enough quality sleep?": preamble +
		"- Sleep duration over the past 7 days (in hours): [{sleep-duration-readings}]\n" +
		"- Sleep restlessness index over the past 7 days: [{sleep-restlessness-indexes}]\n" +
		"- Average bedtime: {average-bedtime}\n" +
		"- Wake-up time: {average-wake-up-time}\n" +
		"- User is {age} years old, {gender}, with no known sleep disorders\n\n" +
		"User Query: Am I getting enough quality sleep?\n\n" +
		"Please evaluate the user's sleep trends and provide clinical but easy-to-understand insights.\n\n" +
		htmlInstruction,
	"What can I do to reduce stress?": preamble +
		"- Stress indicator from wearable (based on HRV or reported scale) over the past 7 days: [{stress-readings}]\n" +
		"- Resting heart rate average: {resting-heart-rate} bpm\n" +
		"- Sleep quality score average: {sleep-score}\n" +
		"- User is {age} years old, {gender}, reports a {stress-level-description} level of daily stress due to work/lifestyle factors\n\n" +
		"User Query: What can I do to reduce stress?\n\n" +
		"Provide lifestyle, behavioral, and wellness suggestions supported by clinical best practices. Keep the response empathetic and practical.\n\n" +
		htmlInstruction,
	"How many steps should I take daily?": preamble +
		"- Average daily steps over the past 7 days: [{steps-readings}]\n" +
		"- Steps goal completion rate: {steps-goal-completion}%\n" +
		"- Physical activity level: {activity-level} (e.g., sedentary, moderately active)\n" +
		"- User is {age} years old, {gender}, with goal to improve general fitness and cardiovascular health\n\n" +
		"User Query: How many steps should I take daily?\n\n" +
		"Provide a personalized step goal recommendation based on current activity level, general health, and age. Include best practices and motivational tips.\n\n" +
		htmlInstruction,
	"Should I be concerned about my heart rate?": preamble +
		"- Average resting heart rate over the past 7 days: [{resting-heart-rate-readings}] bpm\n" +
		"- Maximum heart rate during exercise sessions: [{max-heart-rate-readings}] bpm\n" +
		"- Heart rate variability (HRV): {hrv-value}\n" +
		"- User is {age} years old, {gender}, with {cardiac-history-flag} history of cardiovascular issues\n\n" +
		"User Query: Should I be concerned about my heart rate?\n\n" +
		"Please evaluate the heart rate data in the context of general health and age. Identify any warning signs and recommend if further medical attention is necessary.\n\n" +
		htmlInstruction,
}

const fallbackTemplate = `You are a virtual health assistant.

The user asked: %q

You do not have access to structured health data for this query, but you can still provide general, friendly and health-aware guidance based on your knowledge.

Answer as a helpful assistant, keeping your tone empathetic, accurate, and clinically reasonable.

Wrap the output inside a single <div> with clean HTML using <p>, <ul>, <h3> etc.`

// placeholderMissing is substituted for placeholders with no value.
const placeholderMissing = "not available"

var placeholder = regexp.MustCompile(`\{([a-z0-9-]+)\}`)

// PromptLibrary maps the questions offered to users onto primed prompt
// templates. Lookups ignore case and surrounding space.
type PromptLibrary struct {
	keys      []string
	templates map[string]string
}

func NewPromptLibrary(prompts map[string]string) *PromptLibrary {
	if prompts == nil {
		prompts = defaultPrompts
	}
	lib := &PromptLibrary{templates: make(map[string]string, len(prompts))}
	for k, v := range prompts {
		lib.keys = append(lib.keys, k)
		lib.templates[normalizeKey(k)] = v
	}
	sort.Strings(lib.keys)
	return lib
}

// Keys returns the known questions in lexical order.
func (l *PromptLibrary) Keys() []string {
	out := make([]string, len(l.keys))
	copy(out, l.keys)
	return out
}

// Prime returns the prompt for question with vars substituted into the
// template placeholders. Unknown questions get a generic template and
// known is false. An empty question returns "".
func (l *PromptLibrary) Prime(question string, vars map[string]string) (prompt string, known bool) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", false
	}
	tmpl, ok := l.templates[normalizeKey(question)]
	if !ok {
		return fmt.Sprintf(fallbackTemplate, question), false
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		return placeholderMissing
	}), true
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
