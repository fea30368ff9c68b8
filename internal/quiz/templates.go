package quiz

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

const (
	mcPrompt = `ما هو المفهوم الأساسي المتعلق بـ "%s"؟`
	tfPrompt = `هل "%s" مذكور في النص؟`
)

var (
	mcOptions = [4]string{
		"%s هو مفهوم أساسي في المادة",
		"%s ليس له علاقة بالموضوع",
		"%s هو مصطلح ثانوي",
		"%s غير مذكور في النص",
	}
	tfOptions = [2]string{"صحيح", "خطأ"}
)

// BuildQuestion fills the template for kind with keyword. The first option
// is always the authored correct answer, so CorrectOptionIndex is 0.
func BuildQuestion(id int, keyword string, kind model.QuestionKind) model.Question {
	q := model.Question{
		ID:                 id,
		Kind:               kind,
		Keyword:            keyword,
		CorrectOptionIndex: 0,
	}
	switch kind {
	case model.KindTrueFalse:
		q.Prompt = fmt.Sprintf(tfPrompt, keyword)
		q.Options = []string{tfOptions[0], tfOptions[1]}
	default:
		q.Kind = model.KindMultipleChoice
		q.Prompt = fmt.Sprintf(mcPrompt, keyword)
		q.Options = make([]string, len(mcOptions))
		for i, tmpl := range mcOptions {
			q.Options[i] = fmt.Sprintf(tmpl, keyword)
		}
	}
	return q
}

// KindFor alternates question kinds by index parity, starting with multiple choice.
func KindFor(i int) model.QuestionKind {
	if i%2 == 0 {
		return model.KindMultipleChoice
	}
	return model.KindTrueFalse
}

// shuffle permutes q's options deterministically from its keyword and id
// and moves CorrectOptionIndex to follow the authored answer.
func shuffle(q model.Question) model.Question {
	h := fnv.New64a()
	_, _ = h.Write([]byte(q.Keyword))
	r := rand.New(rand.NewPCG(h.Sum64(), uint64(q.ID)))

	correct := q.CorrectOptionIndex
	opts := make([]string, len(q.Options))
	for i, from := range r.Perm(len(q.Options)) {
		opts[i] = q.Options[from]
		if from == correct {
			q.CorrectOptionIndex = i
		}
	}
	q.Options = opts
	return q
}
