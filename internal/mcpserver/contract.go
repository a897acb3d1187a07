package mcpserver

// NoteFormatContract describes the canonical note file format that LLM
// consumers should follow when creating notes.
const NoteFormatContract = `# Notelog Note Format

Every note is a Markdown file with a YAML preamble maintained by Notelog.

## Structure

` + "```" + `markdown
---
id: k7x9m2p4q8r1s5t3               # assigned by Notelog, never write your own
created: 2026-03-01T12:00:00+00:00 # assigned at creation time
tags:                              # optional YAML list
  - project
  - meeting
---

Body text in standard Markdown. The first non-empty line is the title.
` + "```" + `

## Rules

1. **Do not hand-write the preamble.** The add_note tool generates the id,
   created timestamp, and tags block; pass only the body content.
2. **The first non-empty line is the title.** Heading markers (` + "`" + `#` + "`" + `) and
   list markers are stripped; keep it under 100 characters.
3. **Tags** are lowercase letters, digits, and dashes; no leading or
   trailing dash (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `q3-planning` + "`" + `). A leading ` + "`" + `+` + "`" + ` is
   accepted on input and stripped. At most 10 tags per note.
4. **Ids** are 16 base36 characters. Tools accept any unique prefix of at
   least 2 characters.
5. **Files** live under ` + "`" + `YYYY/MM MonthName/YYYY-MM-DD Title.md` + "`" + `; the
   layout is managed by Notelog, never move files via tools.
6. **Encoding** is UTF-8, at most 50 KiB per note.

## Searching

- Bare words match note content and titles: ` + "`" + `quarterly planning` + "`" + `
- ` + "`" + `+tag` + "`" + ` filters by tag: ` + "`" + `+project` + "`" + `
- Combine with AND, OR, NOT and parentheses:
  ` + "`" + `+project AND (meeting OR call) NOT +cancelled` + "`" + `
- Quote exact phrases: ` + "`" + `"quarterly review"` + "`" + `
- ` + "`" + `limit: 0` + "`" + ` returns only the number of matches.
`
