package structuring

import "strings"

const promptTemplate = `You are a recipe parsing expert. Your ONLY output must be a single, valid JSON object. Do not include any other text, markdown, or explanations.
Analyze the following raw text extracted from a recipe card and format it into this JSON object.
The JSON object must have three keys: "title" (string), "ingredients" (an array of strings), and "instructions" (a single string with newlines preserved).
If you cannot determine the content for a field, return an empty string or empty array for that field. If the entire text is unreadable, return a JSON object with empty values for all fields.

Raw Text:
"""
{{TEXT}}
"""`

// systemMessage is sent ahead of the prompt by chat-style providers.
const systemMessage = "You are a recipe parsing expert. Output only valid JSON."

// BuildPrompt substitutes the OCR text into the instruction template.
func BuildPrompt(text string) string {
	return strings.Replace(promptTemplate, "{{TEXT}}", text, 1)
}
