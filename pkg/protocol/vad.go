package protocol

// VadConfig tunes server-side voice activity detection for a session.
type VadConfig struct {
	Engine          string  `json:"engine" mapstructure:"engine"`
	SpeechThreshold float64 `json:"speechThreshold" mapstructure:"speech_threshold"`
	EndSilenceMS    int     `json:"endSilenceMs" mapstructure:"end_silence_ms"`
	MinSpeechMS     int     `json:"minSpeechMs" mapstructure:"min_speech_ms"`
	PreRollMS       int     `json:"preRollMs" mapstructure:"pre_roll_ms"`
	MaxUtteranceMS  int     `json:"maxUtteranceMs" mapstructure:"max_utterance_ms"`
}

const (
	defaultSpeechThreshold = 0.5
	defaultMinSpeechMS     = 200
	defaultPreRollMS       = 300
	defaultMaxUtteranceMS  = 30000

	// The agent pipeline tolerates longer pauses before closing an
	// utterance; raw STT cuts sooner.
	agentEndSilenceMS = 800
	sttEndSilenceMS   = 500
)

// DefaultVadConfig returns the VAD defaults for a pipeline.
func DefaultVadConfig(p Pipeline) VadConfig {
	endSilence := sttEndSilenceMS
	if p == PipelineAgent {
		endSilence = agentEndSilenceMS
	}
	return VadConfig{
		Engine:          "energy",
		SpeechThreshold: defaultSpeechThreshold,
		EndSilenceMS:    endSilence,
		MinSpeechMS:     defaultMinSpeechMS,
		PreRollMS:       defaultPreRollMS,
		MaxUtteranceMS:  defaultMaxUtteranceMS,
	}
}

func (v VadConfig) withDefaults(p Pipeline) VadConfig {
	def := DefaultVadConfig(p)
	if v.Engine == "" {
		v.Engine = def.Engine
	}
	if v.SpeechThreshold == 0 {
		v.SpeechThreshold = def.SpeechThreshold
	}
	if v.EndSilenceMS == 0 {
		v.EndSilenceMS = def.EndSilenceMS
	}
	if v.MinSpeechMS == 0 {
		v.MinSpeechMS = def.MinSpeechMS
	}
	if v.PreRollMS == 0 {
		v.PreRollMS = def.PreRollMS
	}
	if v.MaxUtteranceMS == 0 {
		v.MaxUtteranceMS = def.MaxUtteranceMS
	}
	return v
}
