package harness

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/petadopt/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registry configures the registry the scenario starts from.
	Registry RegistrySetup `yaml:"registry"`

	// NetworkID is the environment's network. Zero means
	// engine.DefaultNetworkID.
	NetworkID uint64 `yaml:"network_id,omitempty"`

	// Accounts maps account names used in the flow to addresses.
	Accounts map[string]string `yaml:"accounts"`

	// Flow is the ordered list of steps.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and registry state.
	Assertions []Assertion `yaml:"assertions"`
}

// RegistrySetup names the owner account and the initial pet count.
type RegistrySetup struct {
	Owner       string `yaml:"owner"`
	InitialPets uint64 `yaml:"initial_pets"`
}

// FlowStep is one request, or a group of requests submitted together.
//
// Exactly one of Adopt, Add or Concurrent must be set.
type FlowStep struct {
	// As is the account submitting the request.
	As string `yaml:"as,omitempty"`

	// Adopt is the pet id to adopt. Signed so that negative input can
	// exercise the environment's input boundary.
	Adopt *int64 `yaml:"adopt,omitempty"`

	// Add requests a new pet.
	Add bool `yaml:"add,omitempty"`

	// Concurrent members are all submitted before any is applied.
	Concurrent []FlowStep `yaml:"concurrent,omitempty"`

	// Expect validates the step's outcome. Nil means no validation.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is confirmed, failed or rejected.
	Outcome string `yaml:"outcome"`

	// Reason, when set, must equal the recorded reason.
	Reason string `yaml:"reason,omitempty"`

	// EntityID, when set, must equal the created or targeted id.
	EntityID *int64 `yaml:"entity_id,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type; see the package documentation.
	Type string `yaml:"type"`

	// Kind filters trace events by request kind (add_entity, adopt_entity).
	Kind string `yaml:"kind,omitempty"`

	// Account filters trace events, or names the expected adopter.
	Account string `yaml:"account,omitempty"`

	// Outcome filters trace events.
	Outcome string `yaml:"outcome,omitempty"`

	// Entity filters trace events, or is the pet queried by owner_of.
	Entity *int64 `yaml:"entity,omitempty"`

	// IDs is the expected id list for adopted_ids and adopted_by.
	IDs []int64 `yaml:"ids,omitempty"`

	// Count is the expected number for trace_count and journal_count.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertOwnerOf       = "owner_of"
	AssertAdoptedIDs    = "adopted_ids"
	AssertAdoptedBy     = "adopted_by"
	AssertJournalCount  = "journal_count"
)

// NoAccount names the unset sentinel in owner_of assertions.
const NoAccount = "none"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// AccountNames returns the declared account names, sorted.
func (s *Scenario) AccountNames() []string {
	names := make([]string, 0, len(s.Accounts))
	for name := range s.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Accounts) == 0 {
		return fmt.Errorf("accounts map is required and must be non-empty")
	}
	for _, name := range s.AccountNames() {
		if name == NoAccount {
			return fmt.Errorf("accounts: %q is reserved", NoAccount)
		}
		addr, err := ir.ParseAddress(s.Accounts[name])
		if err != nil {
			return fmt.Errorf("accounts[%s]: %w", name, err)
		}
		if addr.IsZero() {
			return fmt.Errorf("accounts[%s]: zero address is not an account", name)
		}
	}
	if s.Registry.Owner == "" {
		return fmt.Errorf("registry.owner is required")
	}
	if _, ok := s.Accounts[s.Registry.Owner]; !ok {
		return fmt.Errorf("registry.owner: unknown account %q", s.Registry.Owner)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(s, fmt.Sprintf("flow[%d]", i), step, true); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(s, i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(s *Scenario, at string, step FlowStep, groupAllowed bool) error {
	set := 0
	if step.Adopt != nil {
		set++
	}
	if step.Add {
		set++
	}
	if len(step.Concurrent) > 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%s: exactly one of adopt, add or concurrent is required", at)
	}

	if len(step.Concurrent) > 0 {
		if !groupAllowed {
			return fmt.Errorf("%s: concurrent groups cannot be nested", at)
		}
		if step.As != "" || step.Expect != nil {
			return fmt.Errorf("%s: as and expect belong on concurrent members", at)
		}
		for j, member := range step.Concurrent {
			if err := validateStep(s, fmt.Sprintf("%s.concurrent[%d]", at, j), member, false); err != nil {
				return err
			}
		}
		return nil
	}

	if step.As == "" {
		return fmt.Errorf("%s: as is required", at)
	}
	if _, ok := s.Accounts[step.As]; !ok {
		return fmt.Errorf("%s: unknown account %q", at, step.As)
	}
	if step.Expect != nil {
		if err := validateOutcome(step.Expect.Outcome); err != nil {
			return fmt.Errorf("%s.expect: %w", at, err)
		}
	}
	return nil
}

func validateOutcome(o string) error {
	switch o {
	case OutcomeConfirmed, OutcomeFailed, OutcomeRejected:
		return nil
	case "":
		return fmt.Errorf("outcome is required")
	default:
		return fmt.Errorf("unknown outcome %q", o)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	knownAccount := func(name string) error {
		if _, ok := s.Accounts[name]; !ok {
			return fmt.Errorf("assertions[%d]: unknown account %q", index, name)
		}
		return nil
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Account != "" {
			if err := knownAccount(a.Account); err != nil {
				return err
			}
		}
		if a.Outcome != "" {
			if err := validateOutcome(a.Outcome); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
		if a.Type == AssertTraceCount && a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for trace_count", index)
		}
	case AssertOwnerOf:
		if a.Entity == nil {
			return fmt.Errorf("assertions[%d]: entity is required for owner_of", index)
		}
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for owner_of (use %q for unadopted)", index, NoAccount)
		}
		if a.Account != NoAccount {
			if err := knownAccount(a.Account); err != nil {
				return err
			}
		}
	case AssertAdoptedIDs:
	case AssertAdoptedBy:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for adopted_by", index)
		}
		if err := knownAccount(a.Account); err != nil {
			return err
		}
	case AssertJournalCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for journal_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
