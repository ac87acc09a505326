package plan

import "encoding/json"

// DefaultConcepts returns the built-in design concepts.
func DefaultConcepts() []DesignConcept {
	return []DesignConcept{
		{ID: "modern", Name: "모던 클린", Description: "깔끔한 여백과 미니멀 타이포그래피"},
		{ID: "warm", Name: "따뜻한 일러스트", Description: "부드러운 색감과 손그림 느낌"},
		{ID: "bold", Name: "볼드 그래픽", Description: "강렬한 색상 대비와 큰 텍스트"},
	}
}

// SamplePlan returns the demo plan used when plan generation is unavailable.
func SamplePlan() *Plan {
	return &Plan{
		StructureType: "MULTI",
		EstimatedTone: "친근하고 따뜻한",
		Sections: Sections{
			Cover: json.RawMessage(`{"main_title":"광양시와 함께하는 건강한 봄","sub_title":"시민 건강 캠페인 안내"}`),
			Body: []json.RawMessage{
				json.RawMessage(`{"summary":["봄철 건강관리의 중요성","면역력 강화를 위한 생활 습관"]}`),
				json.RawMessage(`{"summary":["광양시 무료 건강검진 일정","4월~5월 주요 프로그램 안내"]}`),
				json.RawMessage(`{"summary":["건강한 식단 구성 팁","제철 재료 활용 레시피"]}`),
			},
			Outro: json.RawMessage(`{"cta":"광양시 보건소에서 무료 건강검진을 받아보세요!","contact":"문의: 061-797-1234"}`),
		},
	}
}
