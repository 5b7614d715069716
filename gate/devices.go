package gate

// authorizeAddress admits addr into the session's allow-list. Addresses
// are admitted strictly in first-seen order and never evicted: once the
// list is full, every new address is rejected until the session expires.
//
// Must be called inside a Store.Update mutator so that concurrent
// admissions cannot push the list past MaxAddresses.
func authorizeAddress(sess *Session, addr string) error {
	for _, a := range sess.AllowedAddresses {
		if a == addr {
			return nil
		}
	}
	if len(sess.AllowedAddresses) >= sess.MaxAddresses {
		return ErrDeviceLimitExceeded
	}
	sess.AllowedAddresses = append(sess.AllowedAddresses, addr)
	return nil
}
