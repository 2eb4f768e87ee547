// Package openai implements [ai.Provider] over the OpenAI-compatible
// /chat/completions endpoint. Codex-style executors and any self-hosted
// gateway speaking the same wire format go through this client.
//
// [New] reads OPENAI_API_KEY and OPENAI_API_BASE_URL from the environment;
// [Provider.WithAPIKey] and [Provider.WithBaseURL] override them.
package openai
