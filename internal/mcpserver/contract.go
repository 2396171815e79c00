package mcpserver

// MessageContract describes the message channel and how check results should
// be read by LLM consumers.
const MessageContract = `# shelfcheck Message Contract

Requests ask every enabled media source whether it holds a title.

## Request

` + "```" + `json
{"type": "CHECK_MOVIE", "title": "Inception", "year": 2010}
` + "```" + `

- ` + "`" + `type` + "`" + ` is required. Only ` + "`" + `CHECK_MOVIE` + "`" + ` is understood.
- ` + "`" + `title` + "`" + ` is required. Leading articles, punctuation and case do not matter.
- ` + "`" + `year` + "`" + ` is optional. When given, library items one year off still match.

## Response

` + "```" + `json
{
  "success": true,
  "found": true,
  "results": [
    {"sourceId": "plex", "sourceName": "Plex", "found": true,
     "item": {"id": "42", "name": "Inception", "year": 2010}},
    {"sourceId": "jellyfin", "sourceName": "Jellyfin", "found": false,
     "error": "Jellyfin: search: connection refused"}
  ]
}
` + "```" + `

## Rules

1. ` + "`" + `results` + "`" + ` has exactly one entry per enabled source, in registration order.
2. ` + "`" + `found` + "`" + ` is true when any entry is found.
3. A source that failed reports ` + "`" + `found: false` + "`" + ` with an ` + "`" + `error` + "`" + `; other sources are unaffected.
4. With no enabled sources the answer is ` + "`" + `found: false` + "`" + ` with an empty ` + "`" + `results` + "`" + ` list.
5. Unknown message types answer ` + "`" + `{"success": false, "error": "unknown message type"}` + "`" + `.
`
