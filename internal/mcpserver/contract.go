package mcpserver

// TutoringProtocol describes how an LLM tutor should use the tutorcore tools
// and how to read the context packs they return.
const TutoringProtocol = `# Tutorcore Tutoring Protocol

Tutorcore grounds a tutoring conversation in a concept graph built from the
learner's notes and tracks per-skill mastery with Bayesian Knowledge Tracing.

## Tools

1. **retrieve_context** before answering a conceptual question. Pass the
   learner's question verbatim. The result is a Markdown context pack:

` + "```" + `markdown
## Concept Graph Context

### Concepts
- **Cardiac Output** [SEED] — Cardiac output is the volume of blood the heart...
- **Stroke Volume** — Stroke volume is the blood ejected by the left ventricle...

### Relationships
- Cardiac Output --[links_to]--> Stroke Volume
` + "```" + `

   Concepts marked ` + "`[SEED]`" + ` were named in the question. Ground explanations
   in the listed relationships and do not invent edges that are not listed.

2. **record_practice** after every learner response you grade. Sources:
   - ` + "`attempt`" + `: the learner answered a question.
   - ` + "`evaluate_work`" + `: you graded submitted work.
   - ` + "`teach_back`" + `: the learner explained the concept back to you.
   - ` + "`hint`" + `: you gave a hint. Hints are logged but never change mastery.
   Pass a stable ` + "`event_uid`" + ` when retrying so the event is counted once.

3. **skill_status** before moving on. Skills are ` + "`locked`" + ` until every
   prerequisite reaches the unlock threshold, ` + "`mastered`" + ` once their own
   mastery reaches the session threshold, and ` + "`unlocked`" + ` otherwise.

4. **why_locked** when a learner asks about a locked skill or keeps failing.
   Work through ` + "`remediation_path`" + ` in order, weakest prerequisite first.

5. **get_mastery** to read the current estimate for one skill.

## Rules

- Never tell the learner their numeric mastery unless they ask.
- Do not record a practice event for small talk or for your own explanations.
- Thresholds are restricted to the configured set; omit them to use the default.
`
