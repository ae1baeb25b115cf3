package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"OpenAssist/internal/llm"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return s.response, s.err
}

func TestRecognizeParsesIntents(t *testing.T) {
	client := &stubLLM{response: `{"intents":[{"name":"get_weather","slots":{"location":"Tokyo"},"confidence":0.92}],"ambiguous":false}`}
	r := NewRecognizer(client)

	intents, clarification := r.Recognize(context.Background(), "东京天气怎么样", nil)
	if clarification != nil {
		t.Fatalf("不应触发澄清: %+v", clarification)
	}
	if len(intents) != 1 || intents[0].Name != NameWeather {
		t.Fatalf("意图解析错误: %+v", intents)
	}
	if intents[0].Slots["location"] != "Tokyo" {
		t.Fatalf("槽位丢失: %+v", intents[0].Slots)
	}
}

func TestRecognizeLowConfidenceIsAllOrNothing(t *testing.T) {
	// 第二个意图低于下限,整个结果必须转成澄清而不是部分列表。
	client := &stubLLM{response: `{"intents":[{"name":"get_weather","slots":{},"confidence":0.9},{"name":"query_knowledge","slots":{},"confidence":0.4}]}`}
	r := NewRecognizer(client)

	intents, clarification := r.Recognize(context.Background(), "do that thing", nil)
	if intents != nil {
		t.Fatalf("低置信度不应返回意图列表: %+v", intents)
	}
	if clarification == nil || len(clarification.Options) == 0 {
		t.Fatal("澄清请求缺少选项")
	}
	if !strings.Contains(clarification.Message, "0.40") {
		t.Fatalf("澄清消息应包含置信度: %s", clarification.Message)
	}
}

func TestRecognizeAmbiguousFlag(t *testing.T) {
	client := &stubLLM{response: `{"intents":[],"ambiguous":true}`}
	r := NewRecognizer(client)

	intents, clarification := r.Recognize(context.Background(), "嗯", nil)
	if intents != nil || clarification == nil {
		t.Fatalf("ambiguous 应触发澄清: intents=%+v clar=%+v", intents, clarification)
	}
	if len(clarification.Options) != 3 {
		t.Fatalf("候选操作数量不符: %+v", clarification.Options)
	}
}

func TestRecognizeMalformedFallsBack(t *testing.T) {
	client := &stubLLM{response: "I think the user wants weather"}
	r := NewRecognizer(client)

	intents, clarification := r.Recognize(context.Background(), "weather in Tokyo", nil)
	if clarification != nil {
		t.Fatalf("兜底路径不应产生澄清: %+v", clarification)
	}
	if len(intents) != 1 || intents[0].Name != NameWeather {
		t.Fatalf("兜底分类错误: %+v", intents)
	}
}

func TestRecognizeLLMErrorFallsBack(t *testing.T) {
	client := &stubLLM{err: errors.New("connection refused")}
	r := NewRecognizer(client)

	intents, clarification := r.Recognize(context.Background(), "随便聊聊", nil)
	if clarification != nil || len(intents) == 0 {
		t.Fatalf("LLM 失败必须走兜底: intents=%+v clar=%+v", intents, clarification)
	}
}

func TestRecognizeCodeFenceResponse(t *testing.T) {
	client := &stubLLM{response: "```json\n{\"intents\":[{\"name\":\"general_qa\",\"slots\":{\"query\":\"hi\"},\"confidence\":0.95}]}\n```"}
	r := NewRecognizer(client)

	intents, clarification := r.Recognize(context.Background(), "hi", nil)
	if clarification != nil || len(intents) != 1 || intents[0].Name != NameGeneralQA {
		t.Fatalf("代码块包裹的 JSON 应被解析: intents=%+v clar=%+v", intents, clarification)
	}
}

func TestFallbackPriorityOrder(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"What's the weather forecast?", NameWeather},
		{"帮我看看天气", NameWeather},
		{"summarize my inbox", NameEmails},
		{"帮我总结 10 封邮件", NameEmails},
		{"do you remember what we discussed earlier", NameRecall},
		{"我们之前聊过什么", NameRecall},
		{"explain how this works", NameGeneralQA},
		{"什么是向量检索", NameGeneralQA},
		{"搜索最新的报告", NameKnowledge},
		{"随便说点什么吧", NameGeneralQA},
	}
	for _, tc := range cases {
		intents := Fallback(tc.text)
		if len(intents) == 0 {
			t.Fatalf("%q: 兜底分类必须返回至少一个意图", tc.text)
		}
		if intents[0].Name != tc.want {
			t.Errorf("%q: 期望 %s,实际 %s", tc.text, tc.want, intents[0].Name)
		}
	}
}

func TestFallbackEmailCount(t *testing.T) {
	intents := Fallback("summarize my latest 12 emails")
	if intents[0].Slots["count"] != 12 {
		t.Fatalf("邮件数量提取错误: %+v", intents[0].Slots)
	}
	intents = Fallback("summarize my emails")
	if intents[0].Slots["count"] != 5 {
		t.Fatalf("默认邮件数量应为 5: %+v", intents[0].Slots)
	}
}
