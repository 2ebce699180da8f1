package library

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// FileYAML is the root of a constraint library file.
type FileYAML struct {
	Version      int              `yaml:"version" validate:"gte=0,lte=1"`
	Constraints  []ConstraintYAML `yaml:"constraints" validate:"dive"`
	Compositions []CompositeYAML  `yaml:"compositions" validate:"dive"`
}

// ConstraintYAML is one atomic constraint.
type ConstraintYAML struct {
	ID       string   `yaml:"id" validate:"required,constraintid"`
	Title    string   `yaml:"title"`
	Priority float64  `yaml:"priority" validate:"gte=0,lte=1"`
	Phases   []string `yaml:"phases" validate:"dive,required"`

	TriggerYAML `yaml:",inline"`

	Reminders []string `yaml:"reminders" validate:"dive,required"`
}

// TriggerYAML holds the trigger fields shared by constraints and compositions.
type TriggerYAML struct {
	Keywords            []string `yaml:"keywords" validate:"dive,required"`
	FilePatterns        []string `yaml:"file_patterns" validate:"dive,required"`
	ContextPatterns     []string `yaml:"context_patterns" validate:"dive,required"`
	AntiPatterns        []string `yaml:"anti_patterns" validate:"dive,required"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
}

func (t TriggerYAML) empty() bool {
	return len(t.Keywords) == 0 && len(t.FilePatterns) == 0 && len(t.ContextPatterns) == 0
}

// CompositeYAML is a composite constraint and the strategy that sequences
// its components. Which step fields apply depends on Type.
type CompositeYAML struct {
	ID       string   `yaml:"id" validate:"required,constraintid"`
	Title    string   `yaml:"title"`
	Type     string   `yaml:"type" validate:"required,oneof=sequential hierarchical layered progressive"`
	Priority float64  `yaml:"priority" validate:"gte=0,lte=1"`
	Phases   []string `yaml:"phases" validate:"dive,required"`

	TriggerYAML `yaml:",inline"`

	Reminders []string `yaml:"reminders" validate:"dive,required"`

	// sequential and progressive
	Stages []StageYAML `yaml:"stages" validate:"required_if=Type sequential,required_if=Type progressive,dive"`
	// sequential
	Rules []RuleYAML `yaml:"rules" validate:"dive"`
	// progressive
	AllowSkipAhead bool `yaml:"allow_skip_ahead"`
	// hierarchical
	Members []MemberYAML `yaml:"members" validate:"required_if=Type hierarchical,dive"`
	// layered
	Layers      []LayerYAML         `yaml:"layers" validate:"required_if=Type layered,dive"`
	Allowed     map[string][]string `yaml:"allowed"`
	Remediation string              `yaml:"remediation" validate:"required_if=Type layered"`
}

// StageYAML is a sequential or progressive stage.
type StageYAML struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint" validate:"required,constraintid"`
	Barrier    bool   `yaml:"barrier"`
	Guidance   string `yaml:"guidance" validate:"required_if=Barrier true"`
}

// RuleYAML maps workflow state and evaluation status to a sequential stage.
type RuleYAML struct {
	WorkflowState string `yaml:"workflow_state"`
	Evaluation    string `yaml:"evaluation"`
	Successful    *bool  `yaml:"successful"`
	Stage         string `yaml:"stage" validate:"required"`
}

// MemberYAML places a constraint in a hierarchy. Its priority comes from
// the referenced constraint.
type MemberYAML struct {
	Constraint string `yaml:"constraint" validate:"required,constraintid"`
	Level      int    `yaml:"level" validate:"gte=0"`
}

// LayerYAML is an architectural layer.
type LayerYAML struct {
	Name       string   `yaml:"name" validate:"required"`
	Level      int      `yaml:"level" validate:"gte=0"`
	Constraint string   `yaml:"constraint" validate:"required,constraintid"`
	Patterns   []string `yaml:"patterns" validate:"min=1,dive,required"`
}

var constraintIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// libraryValidate is the validator for library files.
// Initialized in init() with custom validators.
var libraryValidate *validator.Validate

func init() {
	libraryValidate = validator.New()
	_ = libraryValidate.RegisterValidation("constraintid", validateConstraintID)
}

// validateConstraintID checks the dot-segmented id syntax.
func validateConstraintID(fl validator.FieldLevel) bool {
	return constraintIDPattern.MatchString(fl.Field().String())
}
