// Package export runs one course through a format plugin.
//
// An export has a fixed shape:
//
//  1. access check (ExportOne only)
//  2. load the course from the repository
//  3. allocate an exclusive staging tree
//  4. base pass: serialize the course into the tree (package olx)
//  5. optional plugin hooks: ProcessRoot, ProcessExtra
//  6. PostProcess, which must leave output.<extension> in the tree
//
// A successful export returns the output path and leaves the tree in place;
// the caller removes it once the output has been delivered. A failed export
// removes its tree before returning.
//
// # Errors
//
// Callers tell failures apart with errors.As and errors.Is:
//
//	*AuthorizationError        the principal may not export the course
//	course.ErrCourseNotFound   the repository has no such course
//	*CourseExportError         anything that failed after the course was loaded
package export
