package llm

const factExtractionPrompt = `You are a belief extraction system. Analyze the following user interaction and extract distinct candidate beliefs about the user.

For each belief, determine:
- type: one of "preference", "fact", "decision", "constraint"
- content: a clear, concise statement of the belief
- evidence_type: how this belief was derived:
  - "explicit_statement": user directly stated this
  - "implicit_inference": inferred from indirect statements or patterns
  - "behavioral_signal": observed from user actions or behavior

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"type":"preference","content":"User prefers dark mode","evidence_type":"explicit_statement"}]

If no beliefs can be extracted, respond with an empty array: []

Interaction:
%s`

const contradictionPrompt = `Do these two statements contradict each other?
Statement A: %s
Statement B: %s

Answer only "true" or "false". No explanation.`

const entityExtractionPrompt = `Extract key entities from this content.

Content: %s

For each entity, identify:
1. name: The entity's name or identifier
2. entity_type: One of "person", "organization", "tool", "concept", "location", "event", "product", "other"
3. role: The entity's role in the content - "subject" (main actor), "object" (acted upon), or "context" (background)

Respond ONLY with JSON array, no markdown fences:
[{"name":"John","entity_type":"person","role":"subject"}]

If no entities found, return empty array: []`

const relationshipDetectionPrompt = `Analyze the relationship between a new belief and existing similar beliefs.

New belief:
%s

Similar beliefs:
%s

For each relationship found, determine:
1. target_id: The ID of the related belief
2. relation_type: One of:
   - "causal": The new belief is caused by or causes the other
   - "temporal": Related in time/sequence
   - "thematic": Share common themes
   - "contradicts": Contains conflicting information
   - "supports": Reinforces/confirms the other
   - "derived_from": New belief is derived from the other
   - "supersedes": New belief replaces/updates the other
3. strength: 0.0-1.0 how strong the relationship is
4. reason: Brief explanation

Respond ONLY with JSON array, no markdown fences:
[{"target_id":"uuid","relation_type":"thematic","strength":0.7,"reason":"Both about user preferences"}]

If no relationships found, return empty array: []`

const alternativesPrompt = `An assistant is about to execute this action but the available evidence suggests the user's intent may be ambiguous.

Action: %s

Evidence of ambiguity:
%s

Propose 2 to 4 concrete alternative interpretations the user might have meant, phrased as short actionable options the user can pick from. Each alternative must be distinct and plausible given the evidence.

Respond ONLY with a JSON array of strings, no markdown fences:
["option one", "option two"]`
