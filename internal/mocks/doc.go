// Package mocks provides shared mock implementations for testing.
//
// Two styles are used, matching how the mocks are consumed:
//
//   - TestifyMockTaskStore embeds testify's mock.Mock, for tests that assert
//     on calls and arguments.
//   - MockTaskService uses function fields with default return values, for
//     HTTP handler tests that only need canned responses.
//
// Usage:
//
//	svc := &mocks.MockTaskService{
//	    GetTaskFn: func(ctx context.Context, id int) (*domain.TaskMessage, error) {
//	        return nil, service.ErrTaskNotFound
//	    },
//	}
package mocks
