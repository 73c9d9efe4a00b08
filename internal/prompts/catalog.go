package prompts

// Grades lists the selectable grade levels.
var Grades = []string{"一年級", "二年級", "三年級", "四年級", "五年級", "六年級"}

// Modes lists the selectable difficulty modes.
var Modes = []string{"模式 A：適中", "模式 B：困難", "模式 C：素養"}

// Subjects lists the selectable subjects in display order.
var Subjects = []string{"國語", "數學", "自然科學", "社會", "英語"}

var subjectTypes = map[string][]string{
	"國語":   {"國字注音", "造句", "單選題", "閱讀素養題", "句型變換", "簡答題"},
	"數學":   {"應用計算題", "圖表分析題", "填充題", "單選題", "是非題"},
	"自然科學": {"實驗判讀題", "圖表分析題", "單選題", "是非題", "填充題", "配合題"},
	"社會":   {"地圖判讀題", "情境案例分析", "單選題", "是非題", "配合題", "簡答題"},
	"英語":   {"英語會話選擇", "詞彙搭配", "文意選填", "單選題", "閱讀理解"},
}

var defaultTypes = []string{"單選題", "是非題", "填充題", "簡答題"}

// QuestionTypes returns the question types offered for a subject. Unknown or
// empty subjects get the generic set.
func QuestionTypes(subject string) []string {
	types, ok := subjectTypes[subject]
	if !ok {
		types = defaultTypes
	}
	return append([]string(nil), types...)
}

// IsOneOf reports whether v is in options.
func IsOneOf(v string, options []string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
