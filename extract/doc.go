// Package extract converts raw document bytes into text for chunking.
//
// Plain text, markdown, source code and tabular files are decoded as UTF-8.
// HTML is rendered to text with html2text and PDF text is read page by page.
package extract
