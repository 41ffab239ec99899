package config

import "sort"

// Profile is a named assistant persona: its voice and the phrases it answers to.
type Profile struct {
	Name                string
	Voice               string
	UserName            string
	WakeWords           []string
	DeactivationPhrases []string
	StopPhrases         []string
}

const DefaultProfile = "samantha"

func stopPhrasesFor(name string) []string {
	return []string{
		"stop recording", "end recording", "finish recording",
		"that is all", "that's all", "thats all",
		"over and out", "over out",
		"send message", "send it",
		name + " stop", name + " send", name + " done",
	}
}

func deactivationFor(name string, extra ...string) []string {
	out := []string{
		name + " sleep", name + " goodbye", "goodbye " + name,
		"bye " + name, name + " bye",
		"that's all " + name, "thats all " + name, "that is all " + name,
		name + " go to sleep", "go to sleep " + name,
		name + " pause", "pause " + name,
	}
	return append(out, extra...)
}

var profiles = map[string]Profile{
	"samantha": {
		Name:     "samantha",
		Voice:    "af_aoede",
		UserName: "Theodore",
		WakeWords: []string{
			"samantha", "hey samantha", "hi samantha", "hello samantha",
			"ok samantha", "okay samantha",
			"samanta", "samanthia", "samansa", "cemantha", "somantha", "semantha",
			"hey sam", "hi sam", "hello sam", "ok sam", "okay sam",
			"a samantha", "the samantha",
		},
		DeactivationPhrases: deactivationFor("samantha"),
		StopPhrases:         stopPhrasesFor("samantha"),
	},
	"jarvis": {
		Name:     "jarvis",
		Voice:    "bm_lewis",
		UserName: "Tony",
		WakeWords: []string{
			"jarvis", "hey jarvis", "hi jarvis", "hello jarvis",
			"ok jarvis", "okay jarvis",
			"jarves", "jarvice", "jervis", "jarv",
			"hey j", "yo jarvis",
			"a jarvis", "the jarvis",
		},
		DeactivationPhrases: deactivationFor("jarvis", "jarvis standby", "standby jarvis"),
		StopPhrases:         stopPhrasesFor("jarvis"),
	},
	"alfred": {
		Name:     "alfred",
		Voice:    "bm_george",
		UserName: "Mr. Wayne",
		WakeWords: []string{
			"alfred", "hey alfred", "hi alfred", "hello alfred",
			"ok alfred", "okay alfred",
			"alfread", "alfrid", "alford", "olfred",
			"hey al", "yo alfred",
			"a alfred", "the alfred",
		},
		DeactivationPhrases: deactivationFor("alfred", "alfred standby", "standby alfred", "alfred dismissed", "dismissed alfred"),
		StopPhrases:         stopPhrasesFor("alfred"),
	},
}

// LookupProfile returns a copy of the named profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, false
	}
	p.WakeWords = append([]string(nil), p.WakeWords...)
	p.DeactivationPhrases = append([]string(nil), p.DeactivationPhrases...)
	p.StopPhrases = append([]string(nil), p.StopPhrases...)
	return p, true
}

func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
