package descriptions

// Tool descriptions with practical examples and workflow guidance

const (
	ScanDocumentsDescription = `Scan a directory of PDF invoices and fingerprint each document.

**When to use:** First step of every workflow. Run it after adding new PDF files to the document directory.

**Why it's useful:** Builds the text fingerprints that clustering and extraction depend on. Documents whose text cannot be read are reported individually; the rest of the batch continues.

**Examples:**
• Initial intake: "Scan /data/invoices and register every PDF"
• Incremental update: "Scan again after dropping this month's invoices into the directory"

**Common workflows:**
1. Intake: scan_documents → cluster_documents → extract_cluster → export_cluster
2. Re-scan: add files → scan_documents → cluster_documents (reassigns clusters)

**Best practices:** Scanned-image PDFs need tesseract and poppler installed; the failure report names the missing dependency when they are not.`

	ClusterDocumentsDescription = `Group scanned documents into clusters of same-layout invoices.

**When to use:** After scanning, or whenever new documents have been added since the last clustering run.

**Why it's useful:** Documents from the same supplier share a layout, so one template per cluster maps every member. Each cluster also gets a reference document, the most complete member, to author the template against.

**Examples:**
• Automatic grouping: "Cluster everything and tell me how many suppliers there are"
• Fixed count: "Cluster into exactly 3 groups"

**Common workflows:**
1. Standard: scan_documents → cluster_documents → inspect clusters → extract_cluster
2. Tuning: cluster_documents with num_clusters set when the adaptive count splits a supplier

**Best practices:** Leave num_clusters unset to let the similarity threshold decide; re-clustering reassigns every document, so re-run extraction afterwards.`

	DetectFieldsDescription = `Classify text snippets into semantic invoice field types.

**When to use:** While authoring a template, to identify what a piece of extracted text represents (invoice number, date, amount, VAT number, and so on).

**Why it's useful:** Suggests field types and Swedish display names so template mappings do not have to be named by hand.

**Examples:**
• Single value: "What is 'INV-2024-001' when labelled 'Fakturanummer'?"
• Whole region: "Detect all fields in this block of recognized text"

**Common workflows:**
1. Template authoring: extract_document on the reference → detect_fields on the raw text → name the mappings
2. Spot check: detect_fields on one suspicious value with its label as context

**Best practices:** Pass the nearby label text as context; a context keyword disambiguates values the bare pattern would misclassify.`

	ExtractDocumentDescription = `Apply a document's cluster template to that single document.

**When to use:** To test a template against its reference document, or to re-extract one document after fixing its template.

**Why it's useful:** Returns the mapped fields and table rows for one document without touching the rest of the cluster.

**Examples:**
• Template test: "Extract the reference of cluster_0 and show me the fields"
• Re-run: "Extract /data/invoices/acme-042.pdf again after the mapping fix"

**Common workflows:**
1. Iterate: edit template → extract_document on reference → inspect → repeat
2. Repair: fix one failed document → extract_document → export_cluster

**Best practices:** A field missing from the output means no strategy found it; that is normal for optional fields, not an error.`

	ExtractClusterDescription = `Apply a cluster's template to every member document.

**When to use:** After the template has been verified against the reference document.

**Why it's useful:** Bulk extraction with partial-failure tolerance: one unreadable document is marked errored and reported, the siblings still get mapped.

**Examples:**
• Bulk run: "Extract all of cluster_0"
• Follow-up: "Extract cluster_2 now that its template has table mappings"

**Common workflows:**
1. Standard: extract_document on reference → extract_cluster → export_cluster
2. Recovery: fix failed documents → extract_cluster again (already-mapped members are simply re-extracted)

**Best practices:** Check the failure list in the report; fatal failures carry a plain-language explanation including install guidance for missing OCR tools.`

	ExportClusterDescription = `Export a cluster's extracted data to an XLSX, CSV or JSON file.

**When to use:** Final step, after extraction, to hand the structured data to a spreadsheet or downstream system.

**Why it's useful:** Flattens fields and table rows into one tabular file: one row per table row with the document's scalar fields repeated, plus source-file and cluster columns.

**Examples:**
• Spreadsheet: "Export cluster_0 to /data/out/acme.xlsx"
• Pipeline feed: "Export cluster_1 as JSON for the accounting import"

**Common workflows:**
1. Standard: extract_cluster → export_cluster → open in Excel
2. Multi-format: export the same cluster to .xlsx for review and .json for ingestion

**Best practices:** The format follows the file extension; only mapped or reviewed documents are included, so extract first.`

	StatusDescription = `Show the document store state: clusters, member counts, references, and document statuses.

**When to use:** Any time you need an overview of where the workflow stands, or to find cluster ids for the other tools.

**Why it's useful:** One call answers which clusters exist, which have templates, and how many documents are pending, mapped, or errored.

**Examples:**
• Orientation: "What clusters do I have and how big are they?"
• Debugging: "How many documents are in error state?"

**Common workflows:**
1. Before extraction: status → pick cluster id → extract_cluster
2. After a run: status → verify mapped counts → export_cluster

**Best practices:** Run it after clustering to get the cluster ids the extract and export tools require.`
)
