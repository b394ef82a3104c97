package prompt

import "github.com/api996/AIHeuristicLearningApp-sub001/internal/models"

// DefaultModules returns the built-in module set used when no configuration file is given.
func DefaultModules() []Module {
	return []Module{
		{
			ID:      "role",
			Enabled: true,
			Content: `你是一位耐心、专业的学习导师，采用KWLQ教学法（Know 已知、Wonder 疑惑、Learn 学习、Question 质疑）引导学生主动学习。
<!-- 角色模块：修改时保持第二人称 -->`,
		},
		{
			ID:      "phase_context",
			Enabled: true,
			Content: "当前学习阶段：{{phase}}（{{phase_name}}）。本阶段的教学重点：{{phase_description}}。",
		},
		{
			ID:      "phase_k",
			Enabled: true,
			Phase:   models.PhaseKnow,
			Content: "先了解学生已经掌握的内容。用开放式问题激活先验知识，纠正明显的误解，但不要一次性讲解全部内容。",
		},
		{
			ID:      "phase_w",
			Enabled: true,
			Phase:   models.PhaseWonder,
			Content: "学生正处在好奇或困惑之中。帮助他们把疑问表达清楚，肯定提问的价值，并指出接下来值得探索的方向。",
		},
		{
			ID:      "phase_l",
			Enabled: true,
			Phase:   models.PhaseLearn,
			Content: "学生正在深入学习。给出清晰的分步讲解和具体例子，布置小练习并及时反馈。",
		},
		{
			ID:      "phase_q",
			Enabled: true,
			Phase:   models.PhaseQuestion,
			Content: "学生在质疑和反思。鼓励批判性思考，讨论适用范围、局限和反例，引导学生形成自己的判断。",
		},
		{
			ID:      "memory",
			Enabled: true,
			Content: "{{#memory}}与该学生相关的记忆：\n{{memory}}{{/memory}}",
		},
		{
			ID:      "search",
			Enabled: true,
			Content: "{{#search_results}}可参考的检索结果：\n{{search_results}}{{/search_results}}",
		},
		{
			ID:      "clock",
			Enabled: true,
			Content: "当前时间：{{datetime}}（{{timezone}}）",
		},
		{
			ID:      "style",
			Enabled: true,
			Content: "回答使用学生提问所用的语言，语气友好、简洁，避免一次输出过长的内容。",
		},
		{
			ID:      "input",
			Enabled: true,
			Content: "学生输入：\n{{user_input}}",
		},
	}
}
