package proposal

import (
	"fmt"
	"strings"
)

// fallbackBreakdown is the fixed effort breakdown used when the LLM is
// unavailable or misbehaves. Hours are input-independent; only the rate
// varies.
var fallbackBreakdown = []struct {
	item  string
	hours float64
}{
	{"要件定義・設計", 16},
	{"フロントエンド開発", 40},
	{"バックエンド開発", 32},
	{"テスト・品質保証", 16},
	{"デプロイ・運用準備", 8},
}

// FallbackProposal synthesizes a deterministic, self-consistent output purely
// from the input. It is total and never reads external services;
// totalAmount == sum(estimateItems.amount) by construction.
func FallbackProposal(in ProposalInput) ProposalOutput {
	rate := in.HourlyRate

	items := make([]EstimateItem, 0, len(fallbackBreakdown))
	var total float64
	for _, b := range fallbackBreakdown {
		amount := b.hours * rate
		items = append(items, EstimateItem{
			Item:      b.item,
			Quantity:  b.hours,
			Unit:      "時間",
			UnitPrice: rate,
			Amount:    amount,
		})
		total += amount
	}

	return ProposalOutput{
		Summary: fmt.Sprintf("%s様向けに%sの開発を提案いたします。%sを活用し、%sの期間で高品質なシステムを構築いたします。",
			in.ClientName, in.ProjectTitle, strings.Join(in.TechStack, "、"), orUnspecified(in.Duration)),
		Scope: fmt.Sprintf("本プロジェクトでは、%sを実現するためのシステム開発を行います。要件定義から設計、実装、テスト、デプロイまで一貫して対応いたします。",
			in.ProjectDescription),
		Deliverables: []string{
			"要件定義書",
			"システム設計書（画面設計・DB設計・API設計）",
			"ソースコード一式",
			"テスト結果報告書",
			"運用マニュアル",
			"デプロイ済み本番環境",
		},
		Timeline: []TimelinePhase{
			{
				Phase:    "要件定義・設計フェーズ",
				Duration: "2週間",
				Tasks:    []string{"要件ヒアリング", "画面設計", "データベース設計", "API設計"},
			},
			{
				Phase:    "開発フェーズ",
				Duration: "4週間",
				Tasks:    []string{"フロントエンド実装", "バックエンド実装", "API連携", "単体テスト"},
			},
			{
				Phase:    "テスト・リリースフェーズ",
				Duration: "2週間",
				Tasks:    []string{"結合テスト", "ユーザー受入テスト", "バグ修正", "本番デプロイ"},
			},
		},
		EstimateItems: items,
		TotalAmount:   total,
		Notes: "・お支払い条件：着手時50%、納品時50%\n" +
			"・瑕疵担保期間：納品後3ヶ月\n" +
			"・稼働時間：平日10:00〜19:00を基本とします\n" +
			"・仕様変更が発生した場合は別途お見積もりとなります",
	}
}
