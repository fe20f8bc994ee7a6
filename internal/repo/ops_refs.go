package repo

// SetBookmark creates a local bookmark pointing at target.
func (r *Repo) SetBookmark(name, target string) error {
	id, err := r.resolveChangeID(target)
	if err != nil {
		return err
	}
	_, err = r.runMutation("bookmark-set", map[string]any{"name": name, "target": id}, func() error {
		return r.Bookmarks.Set(name, id)
	})
	return err
}

// MoveBookmark repoints an existing local bookmark.
func (r *Repo) MoveBookmark(name, target string) error {
	id, err := r.resolveChangeID(target)
	if err != nil {
		return err
	}
	_, err = r.runMutation("bookmark-move", map[string]any{"name": name, "target": id}, func() error {
		return r.Bookmarks.Move(name, id)
	})
	return err
}

// DeleteBookmark removes a local bookmark.
func (r *Repo) DeleteBookmark(name string) error {
	_, err := r.runMutation("bookmark-delete", map[string]any{"name": name}, func() error {
		return r.Bookmarks.Delete(name)
	})
	return err
}

// SetRemoteBookmark records/updates a remote-qualified bookmark (the
// result of a fetch).
func (r *Repo) SetRemoteBookmark(remote, name, target string) error {
	_, err := r.runMutation("bookmark-set-remote", map[string]any{"remote": remote, "name": name, "target": target}, func() error {
		r.Bookmarks.SetRemote(remote, name, target)
		return nil
	})
	return err
}

// CreateTag creates an immutable tag pointing at target.
func (r *Repo) CreateTag(name, target string) error {
	id, err := r.resolveChangeID(target)
	if err != nil {
		return err
	}
	_, err = r.runMutation("tag-create", map[string]any{"name": name, "target": id}, func() error {
		return r.Tags.Create(name, id)
	})
	return err
}

// DeleteTag removes a tag.
func (r *Repo) DeleteTag(name string) error {
	_, err := r.runMutation("tag-delete", map[string]any{"name": name}, func() error {
		return r.Tags.Delete(name)
	})
	return err
}
