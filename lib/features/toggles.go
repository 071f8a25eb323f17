package features

// Toggles is the named form of a Choice, one switch per family.
type Toggles struct {
	CaseInsensitiveContextWithCandidate    bool `mapstructure:"case_insensitive_context_with_candidate" yaml:"case_insensitive_context_with_candidate"`
	CaseInsensitiveContextWithoutCandidate bool `mapstructure:"case_insensitive_context_without_candidate" yaml:"case_insensitive_context_without_candidate"`
	CaseInsensitiveBagOfWords              bool `mapstructure:"case_insensitive_bag_of_words" yaml:"case_insensitive_bag_of_words"`
	CaseSensitiveContextWithCandidate      bool `mapstructure:"case_sensitive_context_with_candidate" yaml:"case_sensitive_context_with_candidate"`
	CaseSensitiveContextWithoutCandidate   bool `mapstructure:"case_sensitive_context_without_candidate" yaml:"case_sensitive_context_without_candidate"`
	CaseSensitiveBagOfWords                bool `mapstructure:"case_sensitive_bag_of_words" yaml:"case_sensitive_bag_of_words"`
	CharCandidate                          bool `mapstructure:"char_candidate" yaml:"char_candidate"`
	CharInitial                            bool `mapstructure:"char_initial" yaml:"char_initial"`
	Gazetteer                              bool `mapstructure:"gazetteer" yaml:"gazetteer"`
	CharConvolution                        bool `mapstructure:"char_convolution" yaml:"char_convolution"`
}

func (t *Toggles) switches() [NumFamilies]*bool {
	return [NumFamilies]*bool{
		&t.CaseInsensitiveContextWithCandidate,
		&t.CaseInsensitiveContextWithoutCandidate,
		&t.CaseInsensitiveBagOfWords,
		&t.CaseSensitiveContextWithCandidate,
		&t.CaseSensitiveContextWithoutCandidate,
		&t.CaseSensitiveBagOfWords,
		&t.CharCandidate,
		&t.CharInitial,
		&t.Gazetteer,
		&t.CharConvolution,
	}
}

func (t Toggles) Choice() Choice {
	var c Choice
	for f, on := range t.switches() {
		if *on {
			c |= 1 << uint(f)
		}
	}
	return c
}

func (c Choice) Toggles() Toggles {
	var t Toggles
	for f, on := range t.switches() {
		*on = c.Has(Family(f))
	}
	return t
}
