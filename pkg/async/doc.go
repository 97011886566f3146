// Package async provides a small generic Future for background work.
//
// session.Manager.InitializeAuth returns a *Future[bool] so callers can keep
// starting up while the restored token is validated, and join the result
// later (tests always do).
//
//	f := async.Go(ctx, func(ctx context.Context) (bool, error) {
//	    return validate(ctx), nil
//	})
//	ok, err := f.Await()
package async
