package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"OpenAgent-Chain/internal/reasoning"
)

const decomposeSystemPrompt = "" +
	"You are the planning engine of an autonomous agent. " +
	"Decompose the user's objective into a dependency graph of sub-goals. " +
	"Always respond with a compact JSON object: " +
	"{\"goals\": [{\"id\": string, \"description\": string, \"horizon\": \"short\"|\"medium\"|\"long\", \"depends_on\": [string]}]}. " +
	"Goal ids must be short and unique; depends_on may only reference ids in the same list and must not form cycles."

const thinkSystemPrompt = "" +
	"You are the reasoning engine of an autonomous agent. " +
	"Given one goal and the available actions, decide which single action to take. " +
	"Always respond with a compact JSON object: " +
	"{\"steps\": [{\"kind\": \"system\"|\"reasoning\", \"content\": string}], \"action\": string, \"payload\": object}. " +
	"The action must be one of the listed action types and the payload must satisfy its schema."

func buildDecomposePrompt(objective string) string {
	var builder strings.Builder
	builder.WriteString("## 总目标\n")
	builder.WriteString(strings.TrimSpace(objective))
	builder.WriteString("\n\n请将总目标拆解为可执行的子目标序列，并标注相互依赖。")
	return builder.String()
}

func buildThinkPrompt(query reasoning.Query) string {
	var builder strings.Builder
	builder.WriteString("## 当前目标\n")
	builder.WriteString(fmt.Sprintf("目标: %s\n", strings.TrimSpace(query.Goal)))
	if query.Objective != "" {
		builder.WriteString(fmt.Sprintf("总目标: %s\n", strings.TrimSpace(query.Objective)))
	}

	if len(query.Catalog) > 0 {
		builder.WriteString("\n## 可用动作\n")
		for idx, def := range query.Catalog {
			builder.WriteString(fmt.Sprintf("[%d] %s: %s\n", idx+1, def.Type, strings.TrimSpace(def.Metadata.Description)))
			if def.Metadata.Example != nil {
				if example, err := json.Marshal(def.Metadata.Example); err == nil {
					builder.WriteString(fmt.Sprintf("    示例载荷: %s\n", example))
				}
			}
		}
	}

	if len(query.Episodes) > 0 {
		builder.WriteString("\n## 历史经验\n")
		for idx, episode := range query.Episodes {
			builder.WriteString(fmt.Sprintf("[%d] 目标:%s | 结果:%s\n",
				idx+1,
				truncate(episode.Goal),
				truncate(episode.Outcome),
			))
			if idx >= 4 {
				break
			}
		}
	}

	if len(query.Documents) > 0 {
		builder.WriteString("\n## 知识库\n")
		for idx, doc := range query.Documents {
			builder.WriteString(fmt.Sprintf("[%d] %s: %s\n",
				idx+1,
				strings.TrimSpace(doc.Title),
				truncate(doc.Content),
			))
			if idx >= 4 {
				break
			}
		}
	}

	if len(query.World) > 0 {
		builder.WriteString("\n## 环境状态\n")
		for key, value := range query.World {
			builder.WriteString(fmt.Sprintf("- %s: %s\n", key, truncate(value)))
		}
	}

	builder.WriteString("\n请给出推理步骤 steps 与最终的动作决策 action/payload。")
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 80 {
		return string([]rune(text)[:80]) + "..."
	}
	return text
}
