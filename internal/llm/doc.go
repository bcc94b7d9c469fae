// Package llm asks language model providers to categorize transactions.
// It supports OpenAI, Anthropic and Gemini behind one Provider interface, with
// a shared prompt policy, a tolerant JSON response parser, retry logic, rate
// limiting and a usage record for every provider call.
package llm
