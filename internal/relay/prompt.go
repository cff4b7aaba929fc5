package relay

import "strings"

// BasePrompt is the nutritionist instruction used when a request does not
// bring its own system prompt.
const BasePrompt = "你是一个专业的营养师助手，专门为甲亢患者提供饮食建议。\n\n" +
	"甲亢饮食原则：\n" +
	"1. 严格限制碘的摄入（避免海带、紫菜、海鱼、海虾等海产品）\n" +
	"2. 增加热量摄入（甲亢患者代谢旺盛）\n" +
	"3. 补充优质蛋白质（鸡蛋、牛奶、瘦肉、豆类）\n" +
	"4. 补充维生素和矿物质\n" +
	"5. 避免辛辣刺激性食物\n" +
	"6. 戒烟戒酒、少喝浓茶咖啡\n\n" +
	"请根据用户的需求和健康状况，给出详细的食谱建议，包括：\n" +
	"- 食材清单（标注是否适合甲亢患者）\n" +
	"- 烹饪步骤\n" +
	"- 营养价值（热量、蛋白质、含碘量）\n" +
	"- 注意事项"

// SystemPrompt joins the prompt and the health context with a blank line
// and trims the result. A nil override selects base; an empty override is
// kept as empty.
func SystemPrompt(base string, override, healthContext *string) string {
	prompt := base
	if override != nil {
		prompt = *override
	}
	ctx := ""
	if healthContext != nil {
		ctx = *healthContext
	}
	return strings.TrimSpace(prompt + "\n\n" + ctx)
}
