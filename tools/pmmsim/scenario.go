package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"stivos/kernel/mm"
)

const (
	opAlloc = "alloc"
	opFree  = "free"
)

// Region is a memory map entry as it appears in a scenario file.
type Region struct {
	Base   uint64 `yaml:"base"`
	Length uint64 `yaml:"length"`
	Type   string `yaml:"type"`
}

// Step is a single allocator operation. Alloc steps reserve Pages pages and
// remember the result under Ref; free steps release the allocation named by
// Ref. If ExpectError is set, the step must fail with that message.
type Step struct {
	Op          string `yaml:"op"`
	Pages       uint64 `yaml:"pages"`
	Ref         string `yaml:"ref"`
	ExpectError string `yaml:"expectError"`
}

// Scenario describes a memory map and the operations to run against an
// allocator initialized from it.
type Scenario struct {
	Regions []Region `yaml:"regions"`
	Steps   []Step   `yaml:"steps"`
}

// LoadScenario reads and validates the scenario stored in path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling scenario: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks region types and step references.
func (s *Scenario) Validate() error {
	for i, region := range s.Regions {
		if _, ok := mm.ParseRegionType(region.Type); !ok {
			return fmt.Errorf("region %d: unknown type %q", i, region.Type)
		}
	}

	refs := make(map[string]bool)
	for i, step := range s.Steps {
		switch step.Op {
		case opAlloc:
			if step.ExpectError != "" {
				continue
			}
			if step.Ref == "" {
				return fmt.Errorf("step %d: alloc without ref", i)
			}
			if refs[step.Ref] {
				return fmt.Errorf("step %d: ref %q is still allocated", i, step.Ref)
			}
			refs[step.Ref] = true
		case opFree:
			if !refs[step.Ref] {
				return fmt.Errorf("step %d: free of unknown ref %q", i, step.Ref)
			}
			delete(refs, step.Ref)
		default:
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
	}
	return nil
}

// MemoryMap converts the scenario regions into a memory map. Region types
// must have been checked by Validate.
func (s *Scenario) MemoryMap() mm.RegionList {
	mmap := make(mm.RegionList, 0, len(s.Regions))
	for _, region := range s.Regions {
		regionType, _ := mm.ParseRegionType(region.Type)
		mmap = append(mmap, mm.Region{
			Start:  mm.PhysAddr(region.Base),
			Length: mm.Size(region.Length),
			Type:   regionType,
		})
	}
	return mmap
}
