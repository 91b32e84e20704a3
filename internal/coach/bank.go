package coach

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/intervox/intervox/pkg/interview"
)

//go:embed bank.yaml
var bankYAML []byte

// bankEntry is one templated question in the static bank.
type bankEntry struct {
	Competency string `yaml:"competency"`
	Text       string `yaml:"text"`
}

// questionBank maps kind → seniority → entries.
type questionBank map[string]map[string][]bankEntry

var (
	bankOnce sync.Once
	bank     questionBank
	bankErr  error
)

// loadBank parses the embedded bank once. A parse failure is a build defect,
// surfaced on first use.
func loadBank() (questionBank, error) {
	bankOnce.Do(func() {
		bankErr = yaml.Unmarshal(bankYAML, &bank)
		if bankErr != nil {
			bankErr = fmt.Errorf("coach: parse embedded question bank: %w", bankErr)
		}
	})
	return bank, bankErr
}

// pickBankQuestion returns the n-th question for (kind, seniority), cycling
// through the bucket and substituting the job title. Buckets never being
// empty is guaranteed by the embedded bank; a missing bucket falls back to
// the "mid" one.
func pickBankQuestion(b questionBank, kind interview.QuestionKind, seniority interview.Seniority, n int, jobTitle string) PlannedQuestion {
	bucket := b[string(kind)][string(seniority)]
	if len(bucket) == 0 {
		bucket = b[string(kind)][string(interview.SeniorityMid)]
	}
	if len(bucket) == 0 {
		return PlannedQuestion{
			Kind:       kind,
			Competency: "general",
			Text:       fmt.Sprintf("Tell me about your experience relevant to the %s role.", jobTitle),
		}
	}

	entry := bucket[n%len(bucket)]
	return PlannedQuestion{
		Kind:       kind,
		Competency: entry.Competency,
		Text:       strings.ReplaceAll(entry.Text, "{job_title}", jobTitle),
	}
}
