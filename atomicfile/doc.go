/*
Package atomicfile writes a file so that it either appears complete at its
destination or not at all.

Data goes to a temporary file in the destination directory. Close syncs it
and renames it over the destination. If any Write failed, or Abort was
called, Close removes the temporary file and the destination is untouched.

A record file pair uses two of these: the data and index files are only
published when the whole write session succeeded.

	f, err := atomicfile.New(path)
	if err != nil {
		return err
	}
	// Abort after a successful Close is a no-op
	defer f.Abort()
	if _, err = f.Write(d); err != nil {
		return err
	}
	return f.Close()
*/
package atomicfile
