// Package core provides the business logic for the mileage dashboard.
//
// This package is independent of any UI or transport layer. The web server
// and the milesreport CLI both drive it without modification.
//
// # Pipeline
//
// An upload flows one way:
//
//  1. [ReadText] reads the file, skipping a BOM and sanitizing UTF-8
//  2. [ParseCSV] splits lines, validates the header with [ValidateHeaders]
//     and every row with [ValidateAllRows]
//  3. The resulting [Dataset] feeds the metrics functions ([AverageMiles],
//     [TotalMilesPerPerson], [SortByDate], ...) and the view builders
//     ([Overview], [BuildPersonView])
//
// Parsing is all-or-nothing. The first invalid row aborts the upload with a
// [ValidationError] and no partial Dataset is ever produced.
//
// # State
//
// [Service] owns the dashboard state. Each upload, clear or selection swaps
// in a new [State] value; a Dataset is never modified after it is loaded.
// Uploads are numbered by [Service.Begin] and only the newest may complete,
// so a slow read that finishes after a later upload is discarded with
// [ErrStaleUpload].
//
// # Error Handling
//
// Every user-visible failure has a code (HDR, ROW, FILE, UPL) resolved by
// [MapError]; see error_messages.go for the reference table.
package core
