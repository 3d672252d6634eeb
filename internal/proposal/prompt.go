package proposal

import (
	"fmt"
	"math"
	"strings"
)

// budgetBound maps a coarse budget bucket to a yen upper bound.
// 応相談/unset has no bound.
var budgetBound = map[string]float64{
	"〜30万":   300000,
	"〜50万":   500000,
	"〜100万":  1000000,
	"100万以上": 2000000,
	"応相談":    0,
}

// durationDays maps a coarse duration bucket to estimated business days.
var durationDays = map[string]int{
	"1週間":  5,
	"1ヶ月":  20,
	"3ヶ月":  60,
	"6ヶ月":  120,
	"それ以上": 180,
}

const defaultDurationDays = 60

// MaxHours computes the work-budget hint: floor(budget / rate) when both are
// positive, otherwise duration-days * 6.
func MaxHours(in ProposalInput) int {
	bound := budgetBound[in.Budget]
	if bound > 0 && in.HourlyRate > 0 {
		return int(math.Floor(bound / in.HourlyRate))
	}
	days, ok := durationDays[in.Duration]
	if !ok {
		days = defaultDurationDays
	}
	return days * 6
}

const proposalSystemPrompt = `あなたは日本語のフリーランスエンジニア向け提案書を生成する専門家です。
クライアントに提出するプロフェッショナルな提案書の内容を生成してください。
必ず以下のJSON形式で回答してください。それ以外のテキストは含めないでください。

{
  "summary": "提案概要（2-3文）",
  "scope": "プロジェクトスコープの説明",
  "deliverables": ["納品物1", "納品物2", ...],
  "timeline": [
    { "phase": "フェーズ名", "duration": "期間", "tasks": ["タスク1", "タスク2", ...] }
  ],
  "estimateItems": [
    { "item": "項目名", "quantity": 数値, "unit": "単位", "unitPrice": 数値, "amount": 数値 }
  ],
  "totalAmount": 合計金額（数値）,
  "notes": "備考・注意事項"
}

ルール:
- deliverables は4〜8項目、timeline は2〜5フェーズとしてください。
- estimateItems の amount は quantity × unitPrice、totalAmount は amount の合計と一致させてください。`

// BuildProposalPrompts maps an input to the system/user instruction pair.
// Pure function of its inputs.
func BuildProposalPrompts(in ProposalInput) (system, user string) {
	hint := ""
	if budgetBound[in.Budget] > 0 && in.HourlyRate > 0 {
		hint = fmt.Sprintf("見積もりは合計 %d 時間程度に収めてください。", MaxHours(in))
	} else {
		hint = fmt.Sprintf("期間と単価から現実的な工数（目安 %d 時間以内）で見積もってください。", MaxHours(in))
	}

	user = fmt.Sprintf(`以下の情報を元に提案書を生成してください：

プロジェクト名: %s
クライアント名: %s
プロジェクト概要: %s
技術スタック: %s
期間: %s
予算: %s
担当者名: %s
役割: %s
時給単価: %.0f円

%s`,
		in.ProjectTitle,
		in.ClientName,
		in.ProjectDescription,
		strings.Join(in.TechStack, ", "),
		orUnspecified(in.Duration),
		orUnspecified(in.Budget),
		in.YourName,
		in.YourRole,
		in.HourlyRate,
		hint,
	)

	return proposalSystemPrompt, user
}

// BuildAssistPrompt produces the description-assist instruction from partial
// project metadata.
func BuildAssistPrompt(projectTitle, clientName string, techStack []string, currentDescription string) string {
	stack := "（未入力）"
	if len(techStack) > 0 {
		stack = strings.Join(techStack, ", ")
	}
	current := ""
	if currentDescription != "" {
		current = fmt.Sprintf("現在の概要（これを元に改善してください）: %s\n", currentDescription)
	}

	return fmt.Sprintf(`フリーランスエンジニアの提案書に記載する「案件概要」を作成してください。
プロジェクトの背景・目的・課題・解決策・期待効果を含む、説得力のある概要を200〜300文字程度で作成してください。
箇条書きではなく自然なビジネス文章で記述してください。

プロジェクト名: %s
クライアント名: %s
技術スタック: %s
%s
案件概要の本文のみを出力してください。タイトルや前置きは不要です。`,
		orUnspecified(projectTitle),
		orUnspecified(clientName),
		stack,
		current,
	)
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "（未入力）"
	}
	return s
}
