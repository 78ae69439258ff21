package discussion

import "github.com/sectormind/engine/pkg/types"

// AdjustConfidence implements ConsensusConfidenceAdjuster (spec.md §4.5.2).
// Non-manager agents take their signal-derived confidence directly, on the
// 100x linear map documented in SPEC_FULL.md §11; managers take the mean of their
// sector's non-manager confidences, since a manager never argues in its
// own sector's discussion and so never produces a signal directly.
func AdjustConfidence(sectorAgents []types.Agent, signalsByAgent map[string]types.AgentSignal) map[string]float64 {
	result := make(map[string]float64, len(sectorAgents))

	sum := 0.0
	count := 0
	for _, a := range sectorAgents {
		if types.IsManagerRole(a.Role) {
			continue
		}
		sig, ok := signalsByAgent[a.ID]
		if !ok {
			continue
		}
		confidence := clampSigned(100 * sig.Confidence)
		result[a.ID] = confidence
		sum += confidence
		count++
	}

	for _, a := range sectorAgents {
		if !types.IsManagerRole(a.Role) {
			continue
		}
		if count > 0 {
			result[a.ID] = sum / float64(count)
			continue
		}
		// No non-manager signals to average: fall back to the manager's
		// own last normalized confidence rather than zeroing it out.
		result[a.ID] = clampSigned(a.Confidence)
	}

	return result
}

func clampSigned(v float64) float64 {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}
