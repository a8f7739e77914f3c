package service

import (
	"strconv"
	"strings"

	"lms_backend/internal/util"
)

// GradeAnswer 纯函数评卷：返回是否答对与参考答案，不落库。
// 选择/判断题按选项下标整数比较，提交值无法转成整数视为客户端错误；
// 填空题两侧都做小写化、压缩空白后精确比较，题目本身缺答案配置是数据错误；
// 简答题一律判对，只做留痕不做内容评判。
func GradeAnswer(q Question, submitted interface{}) (bool, interface{}, error) {
	switch q.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		correctIdx, err := coerceIndex(q.Correct)
		if err != nil {
			return false, nil, util.ErrMissingAnswerKey
		}
		submittedIdx, err := coerceIndex(submitted)
		if err != nil {
			return false, correctIdx, util.ErrAnswerCoercion
		}
		return submittedIdx == correctIdx, correctIdx, nil

	case QuestionFillBlank:
		if q.Correct == nil {
			return false, nil, util.ErrMissingAnswerKey
		}
		correct := normalizeText(q.Correct)
		answer := normalizeText(submitted)
		return correct == answer, q.Correct, nil

	case QuestionParagraph:
		return true, "Answer saved successfully", nil
	}

	return false, nil, util.ErrMissingAnswerKey
}

// coerceIndex 把任意 JSON 值转成选项下标
func coerceIndex(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case bool:
		// 与判断题选项顺序一致：True 是第 0 项
		if n {
			return 0, nil
		}
		return 1, nil
	case string:
		idx, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, util.ErrAnswerCoercion
		}
		return idx, nil
	}
	return 0, util.ErrAnswerCoercion
}

// normalizeText 小写化并把连续空白压成单个空格，两端去空白
func normalizeText(v interface{}) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = strings.TrimSpace(strconvFormat(v))
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func strconvFormat(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case bool:
		return strconv.FormatBool(n)
	case string:
		return n
	}
	return ""
}
