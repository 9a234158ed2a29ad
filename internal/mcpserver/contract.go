package mcpserver

// OrgFormatContract describes the org file conventions the organizing tools
// rely on. LLM consumers should read it before editing files by hand.
const OrgFormatContract = `# roamorg Org Format Contract

Every node in the knowledge base is an org file (or headline) with an ` + "`:ID:`" + `
property. The organizing tools find nodes through the index and find entries
through headline links, so both must follow this structure.

## File node

` + "```" + `org
:PROPERTIES:
:ID:       20240101T120000
:END:
#+title: Human-readable title
#+filetags: :idea:project_x:

Body text.
` + "```" + `

1. The property drawer with ` + "`:ID:`" + ` comes first.
2. ` + "`#+title:`" + ` is the display name used in links and search.
3. ` + "`#+filetags:`" + ` is a single line of colon-separated tags. Relocation
   replaces the source tag with the target tag on this line only.

## Entries

An entry is a headline whose title contains an id link to a node:

` + "```" + `org
* [[id:20240101T120000][Human-readable title]]
` + "```" + `

- relocate_entry and delete_entry take the entry position as ` + "`file:line`" + `
  (1-based) and act on the node the first id link names.
- The entry subtree (headline plus everything until the next headline of the
  same or a higher level) moves with it.

## Maps of content

- A MOC anchor is a node configured for a tag. update_mocs writes the count of
  level-0 nodes carrying the tag into the anchor property
  ` + "`:NUM_OF_<TAG>_NODES:`" + ` and appends one entry per missing backlink.
- Entries appended to a file anchor are level-1 headlines at the end of the
  file; entries for a headline anchor go at the end of its subtree, one level
  deeper.

## Literature notes

Nodes with ` + "`:ROAM_REFS: cite:key`" + ` are grouped by citation key;
complete_ref_backlinks links every node citing the key from the literature note.

## Mode

Mutating tools only run while roamorg mode is enabled (see set_mode).
`
