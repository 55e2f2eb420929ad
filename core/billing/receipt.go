package billing

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
)

const receiptTemplate = "payment_receipt"

type StudentFinder interface {
	GetByID(ctx context.Context, id string) (student.Student, error)
}

type receiptData struct {
	StudentName    string
	ReferenceMonth string
	Amount         string
	PaymentMethod  string
	PaidAt         string
}

// ReceiptMailer emails a receipt to students having an email address.
type ReceiptMailer struct {
	students StudentFinder
	mailer   core.EmailService
	loc      *time.Location
}

var _ PaymentHook = (*ReceiptMailer)(nil)

func NewReceiptMailer(students StudentFinder, mailer core.EmailService, loc *time.Location) *ReceiptMailer {
	if loc == nil {
		loc = time.UTC
	}
	return &ReceiptMailer{students: students, mailer: mailer, loc: loc}
}

func (r *ReceiptMailer) Name() string { return "receipt" }

func (r *ReceiptMailer) AfterPaid(ctx context.Context, pay Payment) error {
	st, err := r.students.GetByID(ctx, pay.StudentID)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if st.Email == "" {
		return nil
	}

	data := receiptData{
		StudentName:    st.Name,
		ReferenceMonth: PeriodOf(pay.ReferenceMonth).String(),
		Amount:         pay.Amount.StringFixed(2),
		PaymentMethod:  pay.PaymentMethod,
	}
	if pay.PaidAt != nil {
		data.PaidAt = pay.PaidAt.In(r.loc).Format("2006-01-02 15:04")
	}

	r.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: st.Name, Address: st.Email}},
		Subject:      "Payment receipt " + data.ReferenceMonth,
		TemplateName: receiptTemplate,
		TemplateData: data,
	})
	return nil
}
