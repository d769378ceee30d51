// Package memory implements the memory lifecycle engine: the decision of
// whether new input is merged into an existing memory or stored as a new
// one, time-decay-aware hybrid scoring at retrieval time, and the
// bookkeeping (health stats, tenant scoping) that keeps a collection
// consistent under repeated writes.
//
// Memories are short factual statements distilled from free text or
// conversation turns, so an agent can recall prior facts about a subject.
// Storage and language understanding are delegated to collaborators:
//
//   - Store: vector search backend (chromem-go for embedded use,
//     Qdrant for production)
//   - Embedder: text-to-vector conversion (mock, OpenAI-compatible API,
//     or local ONNX model)
//   - Summarizer / Merger / ContextBuilder: optional LLM steps; the
//     pipelines degrade deterministically when these are absent or fail
//   - EventLogger: append-only, best-effort event trail
//
// The two entry points are Manager.Create (summarize, dedup/merge decision,
// persist) and Manager.Query (search, decay, rerank, optional context
// paragraph). Every operation takes an optional user id; an empty id means
// global scope.
package memory
