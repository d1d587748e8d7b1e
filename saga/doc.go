// Package saga runs long-lived workflows that react to store events.
//
// A saga is a Body that never touches the outside world directly. It
// describes what it wants as an Effect and hands it to Perform, which
// suspends the body until the runtime has interpreted the effect against
// the saga's Env and resumes the body with the typed result:
//
//	err := saga.RunSync(ctx, env, func(s *saga.Saga[State, Event]) error {
//		for {
//			ev, err := s.Take(isSearch)
//			if err != nil {
//				return err
//			}
//			hits, err := saga.Await(s, func(ctx context.Context) ([]Hit, error) {
//				return search(ctx, ev.Query)
//			})
//			if err != nil {
//				return err
//			}
//			if err := s.Put(Event{Hits: hits}); err != nil {
//				return err
//			}
//		}
//	})
//
// Bodies run on generators, so a body and the runtime interpreting it never
// run at the same time. Cancellation is cooperative: a cancelled saga stops
// the next time it performs an effect, which then returns ErrCancelled.
//
// Forked sagas are detached. They outlive their parent unless cancelled
// through their Handle, and a failing fork is logged, counted and passed to
// Env.OnError rather than failing the parent. Combinators that start
// sub-sagas on the caller's behalf own them and cancel them when done.
package saga
