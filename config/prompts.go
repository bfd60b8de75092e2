package config

// Default template constants. Every one is overridable via the PROMPT_*
// environment keys.
const (
	defaultSystemPrompt = "你是一名合规与网络安全领域的专业助手，基于检索到的知识准确、简洁地回答用户问题。"

	defaultRouterPrompt = "你是一个问题路由器。请判断用户问题应当使用下列哪种检索方式：\n" +
		"graph：涉及具体的单位、网络、集成商等实体关系查询\n" +
		"text：涉及法规、标准、规范条文等文本知识查询\n" +
		"hybrid：同时涉及实体关系与法规条文\n" +
		"none：无需检索\n" +
		"只输出 graph/text/hybrid/none 四个词之一，不要输出其他内容。"

	defaultIntentPrompt = "判断以下问题是否涉及网络/单位/集成商等图谱实体查询，只回答 是 或 否。"

	defaultQueryGenerationPrompt = "根据用户问题与下列示例，生成一条图查询语句，只输出查询语句本身。"

	defaultAugmentedAnswerTemplate = "以下是检索到的具体业务信息："

	defaultSummaryPrompt = "请用简洁的自然语言总结以下查询结果。"

	defaultCitationPrompt = "给定最终回答与候选知识列表，返回回答中实际引用到的知识条目 id 列表（JSON 数组）。"
)
