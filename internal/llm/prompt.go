package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt builds the analyst instructions for a task and format.
func SystemPrompt(task string, format Format) string {
	var buf strings.Builder

	buf.WriteString("You are an expert data analyst and content processor. Your task is to: ")
	buf.WriteString(task)
	buf.WriteString("\n\n")
	buf.WriteString("The content will be provided in a structured format with sections and chunks. ")
	buf.WriteString("Please analyze the content thoroughly and provide your response in the requested format.\n\n")
	buf.WriteString(fmt.Sprintf("Output Format: %s\n\n", format))

	buf.WriteString("Guidelines:\n")
	buf.WriteString("1. Understand the content deeply and identify key themes, topics, and important information\n")
	buf.WriteString("2. Restructure the information in a logical, coherent manner\n")
	buf.WriteString("3. Filter out irrelevant or redundant information\n")
	buf.WriteString("4. Maintain accuracy and preserve important details\n")
	buf.WriteString("5. Provide clear, well-organized output\n\n")

	switch format {
	case FormatStructuredJSON:
		buf.WriteString("Return a single JSON object with the following structure:\n")
		buf.WriteString(`{
    "summary": "Brief overview of the content",
    "key_topics": ["topic1", "topic2"],
    "important_points": ["point1", "point2"],
    "structured_content": {"section1": "content"},
    "insights": ["insight1", "insight2"],
    "recommendations": ["recommendation1", "recommendation2"]
}`)
		buf.WriteString("\n")
	case FormatMarkdown:
		buf.WriteString("Return well-formatted markdown with headers, lists, and proper structure.\n")
	case FormatSummary:
		buf.WriteString("Return a concise summary of the key points.\n")
	}

	return buf.String()
}

// UserPrompt builds the user message: carried context, part marker, content.
func UserPrompt(req Request) string {
	var buf strings.Builder

	if req.Context != "" {
		buf.WriteString(req.Context)
		buf.WriteString("\n\n")
	}
	if req.TotalParts > 1 {
		buf.WriteString(fmt.Sprintf("This is part %d of %d of the document. ", req.Part, req.TotalParts))
		buf.WriteString("Analyze only this part; results of all parts will be merged.\n\n")
	}
	buf.WriteString("Please process the following content:\n\n")
	buf.WriteString(req.Content)

	return buf.String()
}
