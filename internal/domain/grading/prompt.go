package grading

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Strictness modes.
const (
	ModeStrict   = "Strict"
	ModeStandard = "Standard"
)

// DefaultSubject is the profile used when none is requested.
const DefaultSubject = "univ_math"

// DefaultLanguage is the language comments are written in.
const DefaultLanguage = "Traditional Chinese"

// TranscriptionRules is the literal-transcription protocol embedded in every
// grading prompt.
const TranscriptionRules = `
# [CRITICAL] ANTI-BIAS & TRANSCRIPTION PROTOCOL:
1. TRUST YOUR EYES, NOT THE TEXTBOOK:
   - Students often modify the question or make weird errors (e.g., changing "1" to "x").
   - If the Rubric expects "1/(1+x^2)" but the image shows "x/(1+x^2)", you MUST extract "x/(1+x^2)".
   - DO NOT "Auto-Correct" the student's writing to match the standard math problem.

2. LITERAL TRANSCRIPTION (SYMPY):
   - In "sympy_expr", output EXACTLY what is written.
   - Example: If student writes "sin(x) = 5", output "sin(x) = 5" (even if impossible). Do not output "No Solution".

3. DETECT DEVIATION:
   - If the student's setup deviates from the Rubric (e.g., extra 'x', wrong coefficient), calculate the score based on THAT error.
   - DEVIATION = 0 POINTS for the "Setup" criteria. Do not give partial credit for a "Correct solution to the wrong problem" unless specified.
4. LATEX FORMATTING (CRITICAL):
   - You MUST double-escape backslashes for JSON.
   - CORRECT: "\\frac{a}{b}" (becomes \frac{a}{b})
   - WRONG: "\frac{a}{b}" (becomes Form Feed character + rac, BROKEN)
   - WRONG: "frac{a}{b}" (Text, BROKEN)
`

// IdentityPrompt asks for the handwritten name and id in a page header.
const IdentityPrompt = `
Identify the **Handwritten Name** (姓名) and **Student ID** (學號).
Output JSON: {"Student ID": "...", "Name": "..."}
If text is unclear or missing, use "Unknown".
`

//go:embed profiles.yaml
var profilesYAML []byte

// Profile is the grader persona and rule sets of one subject.
type Profile struct {
	Role  string            `yaml:"role"`
	Modes map[string]string `yaml:"modes"`
}

// Rules returns the rule set for mode, falling back to Strict.
func (p Profile) Rules(mode string) string {
	if r, ok := p.Modes[mode]; ok {
		return r
	}
	return p.Modes[ModeStrict]
}

// Profiles is the subject catalogue.
type Profiles struct {
	Levels   map[string][]string `yaml:"levels"`
	Profiles map[string]Profile  `yaml:"profiles"`
}

// LoadProfiles decodes a profile catalogue. A catalogue must carry a
// "default" profile.
func LoadProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfiles, err)
	}
	if _, ok := p.Profiles["default"]; !ok {
		return nil, fmt.Errorf("%w: missing default profile", ErrProfiles)
	}
	return &p, nil
}

var (
	defaultProfiles     *Profiles
	defaultProfilesOnce sync.Once
)

// DefaultProfiles returns the built-in catalogue.
func DefaultProfiles() *Profiles {
	defaultProfilesOnce.Do(func() {
		p, err := LoadProfiles(profilesYAML)
		if err != nil {
			panic(err)
		}
		defaultProfiles = p
	})
	return defaultProfiles
}

// Lookup returns the profile for subject. Unknown subjects that mention
// "math" use univ_math; everything else uses default.
func (p *Profiles) Lookup(subject string) Profile {
	if prof, ok := p.Profiles[subject]; ok {
		return prof
	}
	if strings.Contains(subject, "math") {
		if prof, ok := p.Profiles["univ_math"]; ok {
			return prof
		}
	}
	return p.Profiles["default"]
}

// Subjects lists the known subject keys in sorted order.
func (p *Profiles) Subjects() []string {
	out := make([]string, 0, len(p.Profiles))
	for k := range p.Profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PromptOptions selects the persona and rules of a prompt.
type PromptOptions struct {
	Subject  string
	Mode     string
	Language string
}

func (o PromptOptions) withDefaults() PromptOptions {
	if o.Subject == "" {
		o.Subject = DefaultSubject
	}
	if o.Mode == "" {
		o.Mode = ModeStrict
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	return o
}

// Instruction renders the grading system instruction.
func (p *Profiles) Instruction(opts PromptOptions) string {
	opts = opts.withDefaults()
	prof := p.Lookup(opts.Subject)
	role := prof.Role
	if role == "" {
		role = "Academic Grader"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n# ROLE\nYou are a **%s**.\n", role)
	fmt.Fprintf(&b, "\n# LANGUAGE\nWrite ALL comments in %s.\n", opts.Language)
	fmt.Fprintf(&b, "\n# MODE: %s\n%s\n", strings.ToUpper(opts.Mode), prof.Rules(opts.Mode))
	b.WriteString(`
# OUTPUT FORMAT (JSON)
- You MUST provide a detailed breakdown for each step.
- Each breakdown item MUST include:
  (A) "rule": Copy the rubric text.
  (B) "score": Points awarded.
  (C) "comment": MUST start with "` + MarkerStudentWrote + `" (Student wrote: ...) or "` + MarkerMissing + `" (Missing: ...).
      - **MANDATORY**: Use LaTeX ($...$) for ALL math expressions in comments.
  (D) "sympy_expr": [CRITICAL] If the step involves a math formula/calculation, extract the student's raw math expression here in Python/SymPy syntax (e.g., "x**2", "-csc(x)*cot(x)"). If text only, leave empty.
  (E) "evidence": The verbatim text/latex found in the image.
  (F) "rule_id": Echo the rubric rule_id of the step when the rubric provides one.

# LATEX ENFORCEMENT
- **NO PLAIN TEXT MATH**: Do not output "x^2" or "sin(x)". ALWAYS output "$x^2$" or "$\sin(x)$".
- **JSON ESCAPING**: To output a backslash, you need FOUR backslashes in code, or TWO in string.
  - Just output ` + "`\\frac`" + ` to be safe.
`)
	return b.String()
}

// GradingPrompt renders the whole-submission prompt.
func (p *Profiles) GradingPrompt(opts PromptOptions, rubricText string) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(p.Instruction(opts))
	b.WriteString(`
# TASK 1: IDENTITY EXTRACTION (Look at Page 1 Header)
- Extract **Student Name** (姓名) and **Student ID** (學號).
- If handwriting is unclear, guess. If completely missing, use "Unknown".

# TASK 2: GRADING
- Grade based on RUBRIC.
`)
	b.WriteString(TranscriptionRules)
	b.WriteString("\n# RUBRIC\n")
	b.WriteString(rubricText)
	b.WriteString("\n\nOutput JSON.\n")
	return b.String()
}

// GridPrompt renders the prompt for one collage grid of label. Only the
// listed cell indices are graded.
func (p *Profiles) GridPrompt(opts PromptOptions, label string, valid []int, rubricText string) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(p.Instruction(opts))
	fmt.Fprintf(&b, "# TASK: GRADE GRID (Question: %s)\n", label)
	b.WriteString("- ")
	if len(valid) > 0 {
		fmt.Fprintf(&b, "VALID INDICES: %s. IGNORE other cells.", formatIndices(valid))
	}
	b.WriteString("\n")
	b.WriteString(TranscriptionRules)
	b.WriteString("- Comment must start with \"" + MarkerStudentWrote + "\".\n")
	b.WriteString("\n# RUBRIC\n")
	b.WriteString(rubricText)
	b.WriteString("\n")
	return b.String()
}

func formatIndices(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// EffectiveTemperature forces deterministic sampling in Strict mode. Any other
// mode, including none, keeps the requested temperature.
func EffectiveTemperature(mode string, temperature float64) float64 {
	if mode == ModeStrict {
		return 0
	}
	return temperature
}
