// Package history is the public API of the metadata editing-history engine.
//
// A mutation handler edits a file, describes what it did with the Factory
// and hands the resulting action to Record. Undo and Redo later replay the
// recorded before or after values through the TagWriter the Engine was
// opened with. Renames must be reported through NotifyRename before any
// later undo or redo of the affected actions.
//
// # Concurrency Safety
//
//   - Record, Clear and NotifyRename serialize on the history's writer lock.
//
//   - ListActions, RecentActions, GetAction and Action read a published
//     snapshot and never wait for a writer.
//
//   - Undo and Redo hold no history lock while writing files. Two reversals
//     of the same action never overlap: the second fails with
//     errclass.ErrActionBusy. Reversals of different actions may run in
//     parallel, even when they touch the same file; the last write wins.
//
//   - One Engine per process. Engines sharing a blob directory must not be
//     open at the same time.
//
// # Usage
//
//	eng, err := history.Open(history.Options{Writer: tags})
//	defer eng.Close()
//
//	// after writing the new title to the file
//	a, err := eng.Factory().ValueChange(path, "title", oldTitle, newTitle)
//	err = eng.Record(a)
//
//	res, err := eng.Undo(ctx, a.ID())
//	if res.Status != model.StatusSuccess {
//	    // res.Errors lists the files that could not be restored
//	}
package history
