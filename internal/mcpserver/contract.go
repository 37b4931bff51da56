package mcpserver

// PostFormatContract describes the Markdown post format the sync understands.
const PostFormatContract = `# halosync Post Format

Every file under the posts folder is considered. Files without a front-matter
block are skipped, so non-post files can live alongside posts.

## Structure

` + "```" + `markdown
---
title: Human-readable title     # REQUIRED
tags: [go, halo]                # OPTIONAL - list (or single string); created on demand
categories:                     # OPTIONAL - nested lists are flattened
  - Tech
cover: /upload/cover.png        # OPTIONAL - defaults to empty
sticky: true                    # OPTIONAL - presence alone pins the post
date: 2024-01-22 05:12:33       # OPTIONAL - becomes the publish time (UTC)
abbrlink: 4a17b156              # OPTIONAL - stable slug; otherwise derived from title
---

Body text in Markdown.
` + "```" + `

TOML front-matter fenced with ` + "`+++`" + ` is accepted too.

## Rules

1. The slug doubles as the remote post name. Changing ` + "`abbrlink`" + ` or the title
   (when there is no abbrlink) creates a new post on the next sync.
2. An existing post is updated in place; only non-empty fields overwrite it.
3. ` + "`[TOC]`" + ` on its own line renders a table of contents.
4. Abbreviations are declared as ` + "`*[HTML]: Hyper Text Markup Language`" + `.
5. Fenced code blocks are highlighted server-side.
`
