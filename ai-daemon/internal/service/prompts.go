package service

// Тексты промтов. Форматы согласованы с парсерами контракта
// (разделитель мира/состояния, маркеры блока состояния); менять их -
// значит менять и разбор на стороне оркестратора.

const createGamePromptTemplate = `Create a complete structured game world for a hybrid AI-governed gaming system. This must be compatible with rule-based processing.

REQUIRED FORMAT (follow exactly):

Game Title: [Engaging title]

World Description: [2-3 sentences describing setting and atmosphere]

World Lore: [1-2 sentences of background that affects gameplay]

Objectives: [Primary goal - clear and achievable]

Win Conditions: [Specific conditions to win]

Valid Actions: MOVE [direction], EXAMINE [object], TAKE [item], USE [item], TALK [character], ATTACK [target], CAST [spell], OPEN [container]

Locations:
- [Location 1]: [Description]. Exits: [directions]. Items: [list]. NPCs: [list]
- [Location 2]: [Description]. Exits: [directions]. Items: [list]. NPCs: [list]
- [Add 3-5 connected locations]

Items:
- [Item 1]: [Description and properties]
- [Item 2]: [Description and properties]
- [Add key items for objectives]

Game Rules:
- [Rule about movement/exploration]
- [Rule about items/inventory]
- [Rule about winning/losing]

Starting Location: [Location name]

Starting Inventory: [List starting items]

Starting Health: [Number/100]

Current Situation: [Opening scenario that sets the stage]

User request: `

const createGamePromptSuffix = `

CRITICAL: Follow the exact format above. Create a world that supports structured rule-based gameplay with bounded actions.`

const playerActionSystemPrompt = `You are a game state processor. Process player actions and return ONLY the updated player state in the exact format specified. Use this format for subsequent entire conversation thread. STRICTLY Do not PRODUCE explanations, reasoning, or any other text. Replace bracketed placeholders with actual values based on the action and game rules.IMPORTANT: If player repeats an action or similar action send the same updated state again without changes.`

const playerActionFormatBlock = `Return the updated player state in this exact format below:
<<BEGIN_PLAYER_STATE>>
Player_Location: [location_name]
Player_Health: [number]
Player_Score: [number]
Player_Inventory: [list]
Game_Status: [active/won/lost]
Messages: ["A narrative of what happens and should be immersive and provides good game play experience"]
Turn_Count: [number]
<<END_PLAYER_STATE>>`

const validationPromptPrefix = `You are an ultra-permissive and creativity-loving game master validator. Your job is to ENCOURAGE player imagination and say YES to almost everything!

DATA TO ANALYZE:
`

const validationPromptSuffix = `

ULTRA-PERMISSIVE GUIDELINES - Say YES unless the action is:
1. Completely nonsensical (like turning into a refrigerator for no reason)
2. Explicitly breaking fundamental game rules (like instantly killing all NPCs)
3. Completely unrelated to the game context

CREATIVITY-FIRST APPROACH:
- Say YES to ALL creative and imaginative actions
- Say YES to magical/fantasy elements even if they seem powerful
- Say YES to unusual character abilities and transformations
- Say YES to inventive problem-solving approaches
- Say YES to dramatic story changes and plot twists
- Say YES to resource gathering, crafting, and exploration
- Say YES to social interactions and dialogue
- Say YES to combat actions and skill usage
- Say YES to world-building and environmental changes
- Say YES to informational requests and observations
- Default to YES when uncertain - favor fun over realism!

REMEMBER: Players should feel free to be wildly creative. Only say NO to truly absurd or game-breaking actions.

Respond with exactly one word: YES (for creative/valid actions) or NO (only for truly absurd actions)

RESPONSE: `

func buildCreateGamePrompt(userPrompt string) string {
	return createGamePromptTemplate + userPrompt + createGamePromptSuffix
}

func buildPlayerActionContent(world, state, action string) string {
	return "GAME WORLD:\n" + world + "\n\n" +
		"CURRENT PLAYER STATE:\n" + state + "\n\n" +
		"PLAYER ACTION: " + action + "\n\n" +
		playerActionFormatBlock
}

func buildContinuationContent(action string) string {
	return "Player Action: " + action + "\n\nUpdate the player state:"
}

func buildValidationPrompt(statement string) string {
	return validationPromptPrefix + statement + validationPromptSuffix
}
