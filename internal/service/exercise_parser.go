package service

import (
	"encoding/json"
	"fmt"

	"lms_backend/pkg/logger"

	"go.uber.org/zap"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionFillBlank      QuestionType = "fill-blank"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionParagraph      QuestionType = "paragraph"
)

// Question 统一后的题目表示，练习 blob 的三种合法形态都先归一化到它，
// 其余组件一律不再感知原始形态。
type Question struct {
	ID          string       `json:"id"`
	Type        QuestionType `json:"type"`
	Question    string       `json:"question"`
	Options     []string     `json:"options,omitempty"`
	Correct     interface{}  `json:"correct,omitempty"` // 选择/判断题为选项下标，填空题为答案字符串，简答题为 nil
	Explanation string       `json:"explanation,omitempty"`
	FollowUp    *FollowUp    `json:"followUp,omitempty"`
}

// FollowUp 追问题：主题目答完后的巩固问答，答对加 0.5 的旁路加分
type FollowUp struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

// typedKeys 形态(c)（按题型分键的 map）的固定遍历顺序。
// 题目 id 按这个顺序从 question_1 起连续编号，答案提交按 id 对照，顺序不可改动。
var typedKeys = []string{"multiple_choice", "fill_blank", "paragraph", "true_false"}

// ParseExercises 把课时存储的练习 blob 解析为有序题目序列。
// 合法形态：题目数组 / {questions: [...]} / 按题型分键的 map（每种题型至多一题）。
// 缺 id 的题目按 1 起的位置补 question_{n}。脏数据只记日志并返回空序列，从不向上抛错。
func ParseExercises(raw []byte) []Question {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Log.Warn("无法解析练习数据", zap.Error(err))
		return nil
	}

	return parseExerciseValue(data)
}

func parseExerciseValue(data interface{}) []Question {
	switch v := data.(type) {
	case []interface{}:
		return parseQuestionList(v)
	case map[string]interface{}:
		if rawList, ok := v["questions"].([]interface{}); ok {
			return parseQuestionList(rawList)
		}
		return parseTypedMap(v)
	case string:
		// 二次编码的 JSON 字符串，再解一层
		var nested interface{}
		if err := json.Unmarshal([]byte(v), &nested); err != nil {
			logger.Log.Warn("练习数据为非 JSON 字符串")
			return nil
		}
		return parseExerciseValue(nested)
	default:
		logger.Log.Warn("未知的练习数据形态")
		return nil
	}
}

func parseQuestionList(items []interface{}) []Question {
	questions := make([]Question, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		q := normalizeQuestion(m, normalizeType(getString(m, "type")), len(questions)+1)
		questions = append(questions, q)
	}
	return questions
}

func parseTypedMap(m map[string]interface{}) []Question {
	var questions []Question
	counter := 1
	for _, key := range typedKeys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		body, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		q := normalizeQuestion(body, hyphenate(key), counter)
		questions = append(questions, q)
		counter++
	}
	if len(questions) == 0 {
		logger.Log.Warn("练习数据未包含可识别的题目")
	}
	return questions
}

// normalizeQuestion 将单个题目 map 归一化；position 是 1 起的序号，用于补缺失的 id
func normalizeQuestion(m map[string]interface{}, qtype QuestionType, position int) Question {
	q := Question{
		ID:          questionID(m, position),
		Type:        qtype,
		Explanation: getString(m, "explanation"),
	}

	if fu, ok := m["follow_up"].(map[string]interface{}); ok {
		q.FollowUp = &FollowUp{
			Question:      getString(fu, "question"),
			CorrectAnswer: getString(fu, "correct_answer"),
			Explanation:   getString(fu, "explanation"),
		}
	}

	switch qtype {
	case QuestionMultipleChoice:
		q.Question = getString(m, "question")
		q.Options = getStringSlice(m, "options")
		q.Correct = firstValue(m, "correct_answer", "correct")
		if q.Correct == nil {
			q.Correct = float64(0)
		}
	case QuestionFillBlank:
		q.Question = getString(m, "text")
		if q.Question == "" {
			q.Question = getString(m, "question")
		}
		q.Correct = fillBlankAnswer(m)
	case QuestionTrueFalse:
		q.Question = getString(m, "question")
		q.Options = []string{"True", "False"}
		correct := firstValue(m, "correct_answer", "correct")
		// 布尔真值映射为选项下标：true→0，false→1
		if b, ok := correct.(bool); ok {
			if b {
				correct = float64(0)
			} else {
				correct = float64(1)
			}
		}
		if correct == nil {
			correct = float64(0)
		}
		q.Correct = correct
	case QuestionParagraph:
		q.Question = getString(m, "prompt")
		if q.Question == "" {
			q.Question = getString(m, "question")
		}
		if q.Explanation == "" {
			q.Explanation = getString(m, "guidelines")
		}
		q.Correct = nil
	}

	return q
}

// fillBlankAnswer 依次尝试 answers[0] / answer / correct_answer / correct；
// 全部缺失返回 nil，评卷时据此区分"配置缺失"和"答错"
func fillBlankAnswer(m map[string]interface{}) interface{} {
	if answers, ok := m["answers"].([]interface{}); ok && len(answers) > 0 {
		return answers[0]
	}
	if v, ok := m["answer"]; ok {
		return v
	}
	if v, ok := m["correct_answer"]; ok {
		return v
	}
	if v, ok := m["correct"]; ok {
		return v
	}
	return nil
}

// EffectiveFollowUp 返回题目的追问题；没有显式定义时，带选项的选择题自动生成一条
// "补全句子"式追问，其余题型没有追问
func (q Question) EffectiveFollowUp() *FollowUp {
	if q.FollowUp != nil {
		return q.FollowUp
	}
	if q.Type != QuestionMultipleChoice || len(q.Options) == 0 {
		return nil
	}
	idx, err := coerceIndex(q.Correct)
	if err != nil || idx < 0 || idx >= len(q.Options) {
		return nil
	}
	correctOption := q.Options[idx]
	snippet := q.Question
	if len(snippet) > 50 {
		snippet = snippet[:50]
	}
	return &FollowUp{
		Question:      fmt.Sprintf(`Complete this sentence: The correct answer to "%s..." is _______.`, snippet),
		CorrectAnswer: correctOption,
		Explanation:   fmt.Sprintf("The correct answer is %q. This reinforces your understanding of the concept.", correctOption),
	}
}

func questionID(m map[string]interface{}, position int) string {
	if raw, ok := m["id"]; ok && raw != nil {
		switch id := raw.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return fmt.Sprintf("%.0f", id)
		}
	}
	return fmt.Sprintf("question_%d", position)
}

func normalizeType(t string) QuestionType {
	switch t {
	case "fill-blank", "fill_blank":
		return QuestionFillBlank
	case "true-false", "true_false":
		return QuestionTrueFalse
	case "paragraph":
		return QuestionParagraph
	case "multiple-choice", "multiple_choice", "":
		return QuestionMultipleChoice
	default:
		return QuestionMultipleChoice
	}
}

func hyphenate(key string) QuestionType {
	switch key {
	case "multiple_choice":
		return QuestionMultipleChoice
	case "fill_blank":
		return QuestionFillBlank
	case "true_false":
		return QuestionTrueFalse
	default:
		return QuestionParagraph
	}
}

func getString(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func getStringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}

func firstValue(m map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
