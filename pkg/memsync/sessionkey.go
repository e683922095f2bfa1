package memsync

// The external store's identifier grammar is restrictive: letters, digits,
// and a small set of connectors. Some deployments permit underscore and
// hyphen, others hyphen only, so the permitted set is part of the grammar.

type KeyGrammar struct {
	// Connector replaces every character outside the permitted class.
	Connector byte
	// AllowUnderscore widens the permitted class to include '_'.
	AllowUnderscore bool
}

// DefaultKeyGrammar is the most restrictive grammar any known store
// accepts: letters, digits, hyphen.
var DefaultKeyGrammar = KeyGrammar{Connector: '-'}

// NormalizeSessionKey maps a raw, free-form conversation identifier plus
// an optional channel tag into a store-legal session key under the default
// grammar. Pure function: the same inputs always produce the same key, so
// a conversation always resolves to the same remote session.
//
// Distinct (raw, tag) pairs can alias when they differ only in characters
// outside the permitted class ("a:b" and "a.b" both become "a-b"). That is
// an accepted limitation of the replacement scheme, not a correctness bug.
func NormalizeSessionKey(rawKey, channelTag string) string {
	return DefaultKeyGrammar.Normalize(rawKey, channelTag)
}

func (g KeyGrammar) Normalize(rawKey, channelTag string) string {
	connector := g.Connector
	if connector == 0 {
		connector = '-'
	}

	combined := rawKey
	if channelTag != "" {
		combined = rawKey + string(connector) + channelTag
	}

	out := make([]byte, len(combined))
	for i := 0; i < len(combined); i++ {
		c := combined[i]
		if g.permitted(c) {
			out[i] = c
		} else {
			out[i] = connector
		}
	}
	return string(out)
}

func (g KeyGrammar) permitted(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == g.Connector && g.Connector != 0:
		return true
	case c == '-':
		return true
	case c == '_':
		return g.AllowUnderscore
	default:
		return false
	}
}
