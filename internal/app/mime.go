package app

import "mime"

// statementTypes are the bill statement downloads. Slim container images
// ship without /etc/mime.types, so the types are registered explicitly.
var statementTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pdf":  "application/pdf",
}

func init() {
	for ext, typ := range statementTypes {
		if mime.TypeByExtension(ext) == "" {
			// AddExtensionType only fails on a malformed ext or type.
			_ = mime.AddExtensionType(ext, typ)
		}
	}
}
