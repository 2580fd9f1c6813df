package orchestrator

import "github.com/lexiqai/voicechat/internal/turn"

// event is anything that can change the conversation. Events are applied one
// at a time by Run.
type event interface {
	isEvent()
}

type (
	toggleListening   struct{}
	toggleMute        struct{}
	clearConversation struct{}
	speechStarted     struct{}

	speechEnded struct {
		segment []float32
	}

	pipelineResult struct {
		turnID uint64
		resp   turn.Response
	}

	playbackDone struct {
		speakID uint64
		err     error
	}

	displayElapsed struct {
		speakID uint64
	}

	failsafeFired struct {
		speakID uint64
	}
)

func (toggleListening) isEvent()   {}
func (toggleMute) isEvent()        {}
func (clearConversation) isEvent() {}
func (speechStarted) isEvent()     {}
func (speechEnded) isEvent()       {}
func (pipelineResult) isEvent()    {}
func (playbackDone) isEvent()      {}
func (displayElapsed) isEvent()    {}
func (failsafeFired) isEvent()     {}
