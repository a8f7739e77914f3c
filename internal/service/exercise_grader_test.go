package service

import (
	"testing"

	"lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeMultipleChoice(t *testing.T) {
	q := Question{Type: QuestionMultipleChoice, Options: []string{"a", "b", "c"}, Correct: float64(2)}

	// 数值、字符串数字都按下标比较
	for _, answer := range []interface{}{2, float64(2), "2", " 2 "} {
		correct, ref, err := GradeAnswer(q, answer)
		require.NoError(t, err)
		assert.True(t, correct)
		assert.Equal(t, 2, ref)
	}

	correct, _, err := GradeAnswer(q, 0)
	require.NoError(t, err)
	assert.False(t, correct)
}

func TestGradeMultipleChoiceCoercionError(t *testing.T) {
	q := Question{Type: QuestionMultipleChoice, Correct: float64(1)}

	_, _, err := GradeAnswer(q, "not-a-number")
	assert.ErrorIs(t, err, util.ErrAnswerCoercion)

	_, _, err = GradeAnswer(q, []interface{}{1})
	assert.ErrorIs(t, err, util.ErrAnswerCoercion)
}

func TestGradeMultipleChoiceMissingConfig(t *testing.T) {
	// correct 本身无法转下标属于题目配置错误，与提交无关
	q := Question{Type: QuestionMultipleChoice, Correct: "abc"}
	_, _, err := GradeAnswer(q, 0)
	assert.ErrorIs(t, err, util.ErrMissingAnswerKey)
}

func TestGradeTrueFalseBoolSubmission(t *testing.T) {
	q := Question{Type: QuestionTrueFalse, Options: []string{"True", "False"}, Correct: float64(0)}

	correct, _, err := GradeAnswer(q, true)
	require.NoError(t, err)
	assert.True(t, correct)

	correct, _, err = GradeAnswer(q, false)
	require.NoError(t, err)
	assert.False(t, correct)
}

func TestGradeFillBlankNormalization(t *testing.T) {
	q := Question{Type: QuestionFillBlank, Correct: "Paris"}

	for _, answer := range []interface{}{"paris", " Paris  ", "PARIS", "  pArIs "} {
		correct, _, err := GradeAnswer(q, answer)
		require.NoError(t, err)
		assert.True(t, correct, "answer %q should match", answer)
	}

	correct, ref, err := GradeAnswer(q, "london")
	require.NoError(t, err)
	assert.False(t, correct)
	assert.Equal(t, "Paris", ref)
}

func TestGradeFillBlankCollapsesInnerWhitespace(t *testing.T) {
	q := Question{Type: QuestionFillBlank, Correct: "New   York"}

	correct, _, err := GradeAnswer(q, "new york")
	require.NoError(t, err)
	assert.True(t, correct)
}

func TestGradeFillBlankMissingConfig(t *testing.T) {
	q := Question{Type: QuestionFillBlank, Correct: nil}
	_, _, err := GradeAnswer(q, "anything")
	assert.ErrorIs(t, err, util.ErrMissingAnswerKey)
}

func TestGradeParagraphAlwaysCorrect(t *testing.T) {
	q := Question{Type: QuestionParagraph}

	correct, ref, err := GradeAnswer(q, "my thoughts on the lesson")
	require.NoError(t, err)
	assert.True(t, correct)
	assert.Equal(t, "Answer saved successfully", ref)
}
