package quality

import (
	"regexp"
	"strings"

	"github.com/leofalp/railgraph/core/graph"
)

// Profile names a scoring rubric.
type Profile string

const (
	ProfileCodeImplementation Profile = "code_implementation"
	ProfileResearchEvidence   Profile = "research_evidence"
	ProfileDesignPlanning     Profile = "design_planning"
	ProfileSynthesisFinal     Profile = "synthesis_final"
	ProfileGeneric            Profile = "generic"
)

// ParseProfile converts an authored profile name.
func ParseProfile(value string) (Profile, bool) {
	switch profile := Profile(strings.TrimSpace(value)); profile {
	case ProfileCodeImplementation, ProfileResearchEvidence, ProfileDesignPlanning, ProfileSynthesisFinal, ProfileGeneric:
		return profile, true
	}
	return "", false
}

var (
	codeSignal      = regexp.MustCompile(`impl|code|test|lint|build|refactor|fix|bug|develop`)
	researchSignal  = regexp.MustCompile(`research|evidence|search|fact|source|verif|investigat`)
	designSignal    = regexp.MustCompile(`design|plan|architecture|requirement`)
	synthesisSignal = regexp.MustCompile(`final|synth|judge|evaluat|summar`)
)

// InferProfile returns the explicit profile of a turn, or guesses one from
// its executor and then from keywords in its role, prompt, and node id.
func InferProfile(nodeID string, config graph.TurnConfig) Profile {
	if profile, ok := ParseProfile(config.QualityProfile); ok {
		return profile
	}
	if config.ExecutorOrDefault().IsWeb() {
		return ProfileResearchEvidence
	}

	signal := strings.ToLower(config.Role + " " + config.PromptTemplate + " " + nodeID)
	switch {
	case codeSignal.MatchString(signal):
		return ProfileCodeImplementation
	case researchSignal.MatchString(signal):
		return ProfileResearchEvidence
	case designSignal.MatchString(signal):
		return ProfileDesignPlanning
	case synthesisSignal.MatchString(signal):
		return ProfileSynthesisFinal
	default:
		return ProfileGeneric
	}
}
