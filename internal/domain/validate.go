package domain

// Validate checks a metric submitted over the wire. The collector itself
// accepts any input; this guard only runs at the HTTP boundary.
func (in ChatMetricInput) Validate() *APIError {
	if in.MessageLength < 0 {
		return ErrInvalidRequest("messageLength must be >= 0").WithParam("messageLength")
	}
	if in.ContextSize < 0 {
		return ErrInvalidRequest("contextSize must be >= 0").WithParam("contextSize")
	}
	if in.TotalDuration < 0 {
		return ErrInvalidRequest("totalDuration must be >= 0").WithParam("totalDuration")
	}

	switch in.Language {
	case LanguageEnglish, LanguageArabic:
	default:
		return ErrInvalidRequest("language must be one of en, ar").WithParam("language")
	}

	switch in.ChatMode {
	case ChatModeFloating, ChatModeFull:
	default:
		return ErrInvalidRequest("chatMode must be one of floating, full").WithParam("chatMode")
	}

	switch in.CrisisSeverity {
	case "", CrisisLow, CrisisMedium, CrisisHigh, CrisisCritical:
	default:
		return ErrInvalidRequest("unknown crisisSeverity").WithParam("crisisSeverity")
	}

	switch in.ErrorType {
	case "", ChatErrorNetwork, ChatErrorAPI, ChatErrorParsing, ChatErrorTimeout, ChatErrorUnknown:
	default:
		return ErrInvalidRequest("unknown errorType").WithParam("errorType")
	}

	if !validRating(in.AIResponseQuality) {
		return ErrInvalidRequest("aiResponseQuality must be between 1 and 5").WithParam("aiResponseQuality")
	}
	if !validRating(in.UserSatisfaction) {
		return ErrInvalidRequest("userSatisfaction must be between 1 and 5").WithParam("userSatisfaction")
	}

	for name, d := range map[string]*int64{
		"contextBuildDuration":    in.ContextBuildDuration,
		"apiCallDuration":         in.APICallDuration,
		"responseProcessDuration": in.ResponseProcessDuration,
	} {
		if d != nil && *d < 0 {
			return ErrInvalidRequest(name + " must be >= 0").WithParam(name)
		}
	}

	return nil
}

func validRating(r *int) bool {
	return r == nil || (*r >= 1 && *r <= 5)
}
